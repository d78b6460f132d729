package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/generation"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

const (
	minSentencesPerBubble = 3
	maxSentencesPerBubble = 5
)

// ChatService answers a user turn as the conversation's avatar.
type ChatService struct {
	transcripts *TranscriptService
	avatars     *repository.AvatarRepository
	clients     *repository.ClientRepository
	generator   generation.Generator
	history     int
	log         zerolog.Logger
}

func NewChatService(
	transcripts *TranscriptService,
	avatars *repository.AvatarRepository,
	clients *repository.ClientRepository,
	generator generation.Generator,
	history int,
	log zerolog.Logger,
) *ChatService {
	return &ChatService{
		transcripts: transcripts,
		avatars:     avatars,
		clients:     clients,
		generator:   generator,
		history:     history,
		log:         log,
	}
}

type ChatResult struct {
	UserMessage models.Message   `json:"userMessage"`
	Replies     []models.Message `json:"replies"`
}

// Respond appends the user's turn, generates a reply and appends it as one or more ai
// turns. When generation fails the user turn stays recorded without a reply. A non-empty
// dedupeKey makes the user turn idempotent: calling again with the same key reuses the
// recorded turn and only retries generation.
func (s *ChatService) Respond(ctx context.Context, conv Conversation, authorID, message, dedupeKey string) (ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResult{}, apperr.Validation("message is required")
	}

	history, err := s.transcripts.Recent(ctx, conv.Key, s.history)
	if err != nil {
		return ChatResult{}, err
	}

	userMsg, created, err := s.transcripts.AppendOnce(ctx, conv.Key, dedupeKey, models.SenderUser, message, authorID)
	if err != nil {
		return ChatResult{}, err
	}
	if !created {
		s.log.Info().Str("client_id", conv.Key.ClientID).Str("avatar_id", conv.Key.AvatarID).Msg("retrying reply for recorded turn")
		history = before(history, userMsg.SortKey)
	}

	prompt, err := s.buildPrompt(ctx, conv, history, message)
	if err != nil {
		return ChatResult{}, err
	}

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.log.Error().Err(err).Str("client_id", conv.Key.ClientID).Str("avatar_id", conv.Key.AvatarID).Msg("generation failed")
		return ChatResult{UserMessage: userMsg}, apperr.Upstream("generate reply", err)
	}

	result := ChatResult{UserMessage: userMsg, Replies: []models.Message{}}
	for _, chunk := range ChunkIntoMessages(CleanAIText(raw), minSentencesPerBubble, maxSentencesPerBubble) {
		reply, err := s.transcripts.Append(ctx, conv.Key, models.SenderAI, chunk, "")
		if err != nil {
			return result, err
		}
		result.Replies = append(result.Replies, reply)
	}
	return result, nil
}

// before keeps the messages that sort ahead of sortKey.
func before(msgs []models.Message, sortKey string) []models.Message {
	out := msgs[:0:0]
	for _, msg := range msgs {
		if msg.SortKey < sortKey {
			out = append(out, msg)
		}
	}
	return out
}

func (s *ChatService) buildPrompt(ctx context.Context, conv Conversation, history []models.Message, message string) (string, error) {
	var b strings.Builder

	avatar, err := s.avatars.Get(ctx, conv.TherapistID, conv.Key.AvatarID)
	switch {
	case err == nil:
		fmt.Fprintf(&b, "You are %s, a supportive therapy companion.\n", avatar.Name)
		writeField(&b, "Therapeutic theory", avatar.Theory)
		writeField(&b, "Methodology", avatar.Methodology)
		writeField(&b, "Principles", avatar.Principles)
	case errors.Is(err, repository.ErrAvatarNotFound):
		// Avatars can be deleted while sessions still point at them.
		name := conv.AvatarName
		if name == "" {
			name = "a therapy companion"
		}
		fmt.Fprintf(&b, "You are %s, a supportive therapy companion.\n", name)
	default:
		return "", storeErr("get avatar", err)
	}

	client, err := s.clients.Get(ctx, conv.TherapistID, conv.Key.ClientID)
	switch {
	case err == nil:
		b.WriteString("\nAbout the person you are talking with:\n")
		writeField(&b, "Name", client.Name)
		writeField(&b, "Sex", client.Sex)
		writeField(&b, "Age", client.Age)
		writeField(&b, "Emotion pattern", client.EmotionPattern)
		writeField(&b, "Personality", client.Personality)
		writeField(&b, "Cognition", client.Cognition)
		writeField(&b, "Goals", client.Goals)
		writeField(&b, "Principles to respect", client.Principles)
	case errors.Is(err, repository.ErrClientNotFound):
	default:
		return "", storeErr("get client", err)
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, msg := range history {
			speaker := "Client"
			if msg.Sender == models.SenderAI {
				speaker = "You"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Text)
		}
	}

	b.WriteString("\nReply in plain conversational sentences without markdown.\n")
	fmt.Fprintf(&b, "Client: %s\nYou:", message)
	return b.String(), nil
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}
