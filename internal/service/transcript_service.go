package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/config"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

// Conversation is a transcript the caller is allowed to use, with the therapist whose
// avatar and client records describe it.
type Conversation struct {
	Key         repository.ConversationKey
	TherapistID string
	ClientName  string
	AvatarName  string
}

type TranscriptService struct {
	messages *repository.MessageRepository
	grants   *repository.AccessGrantRepository
	clients  *repository.ClientRepository
	cfg      config.TranscriptConfig
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

func NewTranscriptService(
	messages *repository.MessageRepository,
	grants *repository.AccessGrantRepository,
	clients *repository.ClientRepository,
	cfg config.TranscriptConfig,
	log zerolog.Logger,
) *TranscriptService {
	return &TranscriptService{
		messages: messages,
		grants:   grants,
		clients:  clients,
		cfg:      cfg,
		log:      log,
		now:      utcNow,
	}
}

// ResolveConversation checks that caller may use the (clientId, avatarId) transcript.
// Clients need the access grant written when they redeemed an invitation for the pair;
// chat sessions play no part. Therapists need to own the client and, in the owner
// scope, name the client user whose transcript they want.
func (s *TranscriptService) ResolveConversation(ctx context.Context, caller Caller, clientID, avatarID, userID string) (Conversation, error) {
	if clientID == "" || avatarID == "" {
		return Conversation{}, apperr.Validation("clientId and avatarId are required")
	}

	if caller.IsTherapist() {
		client, err := s.clients.Get(ctx, caller.SubjectID, clientID)
		if err != nil {
			if errors.Is(err, repository.ErrClientNotFound) {
				return Conversation{}, apperr.NotFound("client")
			}
			return Conversation{}, storeErr("get client", err)
		}
		if s.messages.Scope() == repository.ScopeOwner && userID == "" {
			return Conversation{}, apperr.Validation("userId is required")
		}
		ref, _ := client.Avatar(avatarID)
		return Conversation{
			Key:         repository.ConversationKey{OwnerID: userID, ClientID: clientID, AvatarID: avatarID},
			TherapistID: caller.SubjectID,
			ClientName:  client.Name,
			AvatarName:  ref.AvatarName,
		}, nil
	}

	grant, err := s.grants.Get(ctx, caller.SubjectID, clientID, avatarID)
	if err != nil {
		if errors.Is(err, repository.ErrAccessGrantNotFound) {
			return Conversation{}, apperr.NotFound("conversation")
		}
		return Conversation{}, storeErr("get access grant", err)
	}
	return Conversation{
		Key:         repository.ConversationKey{OwnerID: caller.SubjectID, ClientID: clientID, AvatarID: avatarID},
		TherapistID: grant.TherapistID,
		ClientName:  grant.ClientName,
		AvatarName:  grant.AvatarName,
	}, nil
}

// Append durably records one turn stamped with the current millisecond.
func (s *TranscriptService) Append(ctx context.Context, key repository.ConversationKey, sender models.Sender, text, authorID string) (models.Message, error) {
	msg, err := newMessage(sender, text, authorID)
	if err != nil {
		return models.Message{}, err
	}
	msg.CreatedAt = s.stamp()

	msg, err = s.messages.Append(ctx, key, msg)
	if err != nil {
		return models.Message{}, storeErr("append message", err)
	}
	return msg, nil
}

// AppendOnce is Append keyed on dedupeKey: repeating it returns the turn the first call
// recorded, with created false, instead of writing a second one. Reusing the key for a
// different text is a conflict.
func (s *TranscriptService) AppendOnce(ctx context.Context, key repository.ConversationKey, dedupeKey string, sender models.Sender, text, authorID string) (models.Message, bool, error) {
	if dedupeKey == "" {
		msg, err := s.Append(ctx, key, sender, text, authorID)
		return msg, err == nil, err
	}
	msg, err := newMessage(sender, text, authorID)
	if err != nil {
		return models.Message{}, false, err
	}
	msg.CreatedAt = s.stamp()

	stored, created, err := s.messages.AppendOnce(ctx, key, dedupeKey, msg)
	if err != nil {
		return models.Message{}, false, storeErr("append message", err)
	}
	if !created && (stored.Text != msg.Text || stored.Sender != msg.Sender) {
		return models.Message{}, false, fmt.Errorf("%w: idempotency key reused for a different message", apperr.ErrConflict)
	}
	return stored, created, nil
}

func newMessage(sender models.Sender, text, authorID string) (models.Message, error) {
	if !sender.Valid() {
		return models.Message{}, apperr.Validation("sender must be user or ai")
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, apperr.Validation("text is required")
	}
	return models.Message{Sender: sender, Text: text, AuthorID: authorID}, nil
}

// stamp returns the current unix millisecond. With unique keys on, it is bumped past the
// last stamp this process issued so consecutive appends from one writer keep their order;
// otherwise two appends in one millisecond share a sort key and the later one wins.
func (s *TranscriptService) stamp() int64 {
	ms := s.now().UnixMilli()
	if !s.cfg.UniqueKeys {
		return ms
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ms <= s.lastStamp {
		ms = s.lastStamp + 1
	}
	s.lastStamp = ms
	return ms
}

// Read returns up to limit messages in ascending order, starting at since (unix ms,
// inclusive) when it is positive. limit falls back to the default and is capped.
func (s *TranscriptService) Read(ctx context.Context, key repository.ConversationKey, limit int, since int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	msgs, err := s.messages.List(ctx, key, limit, since)
	if err != nil {
		return nil, storeErr("read transcript", err)
	}
	return msgs, nil
}

func (s *TranscriptService) Recent(ctx context.Context, key repository.ConversationKey, limit int) ([]models.Message, error) {
	msgs, err := s.messages.Recent(ctx, key, limit)
	if err != nil {
		return nil, storeErr("read transcript", err)
	}
	return msgs, nil
}
