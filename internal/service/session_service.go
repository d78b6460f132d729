package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

type SessionService struct {
	sessions *repository.ChatSessionRepository
	grants   *repository.AccessGrantRepository
	log      zerolog.Logger
	now      func() time.Time
}

func NewSessionService(sessions *repository.ChatSessionRepository, grants *repository.AccessGrantRepository, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		grants:   grants,
		log:      log,
		now:      utcNow,
	}
}

type CreateSessionInput struct {
	OwnerID    string
	ClientID   string
	AvatarID   string
	ClientName string
	AvatarName string
}

// ListSessions returns the owner's sessions ordered by (clientId, avatarId), not recency.
func (s *SessionService) ListSessions(ctx context.Context, ownerID string) ([]models.ChatSession, error) {
	sessions, err := s.sessions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	return sessions, nil
}

// CreateSession upserts; repeating it with the same identity overwrites the record. The
// owner must hold an access grant for the pair, and the therapist comes from that grant.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (models.ChatSession, error) {
	if input.ClientID == "" || input.AvatarID == "" || input.ClientName == "" || input.AvatarName == "" {
		return models.ChatSession{}, apperr.Validation("clientId, avatarId, clientName and avatarName are required")
	}

	grant, err := s.grants.Get(ctx, input.OwnerID, input.ClientID, input.AvatarID)
	if err != nil {
		if errors.Is(err, repository.ErrAccessGrantNotFound) {
			s.log.Warn().
				Str("owner_id", input.OwnerID).
				Str("client_id", input.ClientID).
				Str("avatar_id", input.AvatarID).
				Msg("chat session without access grant")
			return models.ChatSession{}, fmt.Errorf("%w: accept an invitation for this conversation first", apperr.ErrForbidden)
		}
		return models.ChatSession{}, storeErr("get access grant", err)
	}

	session := models.ChatSession{
		OwnerID:     input.OwnerID,
		ClientID:    input.ClientID,
		AvatarID:    input.AvatarID,
		ClientName:  input.ClientName,
		AvatarName:  input.AvatarName,
		TherapistID: grant.TherapistID,
		CreatedAt:   s.now(),
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return models.ChatSession{}, storeErr("create session", err)
	}
	return session, nil
}

// DeleteSession succeeds whether or not the session exists.
func (s *SessionService) DeleteSession(ctx context.Context, ownerID, clientID, avatarID string) error {
	if clientID == "" || avatarID == "" {
		return apperr.Validation("clientId and avatarId are required")
	}
	if err := s.sessions.Delete(ctx, ownerID, clientID, avatarID); err != nil {
		return storeErr("delete session", err)
	}
	return nil
}
