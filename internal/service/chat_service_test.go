package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/models"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func TestCleanAIText(t *testing.T) {
	in := "### Hello **there**\n\n1. First *point*\n2. `code` here --- done"
	assert.Equal(t, "Hello there First point code here done", CleanAIText(in))
}

func TestChunkIntoMessages(t *testing.T) {
	text := "One. Two! Three? Four. Five. Six. Seven."
	chunks := ChunkIntoMessages(text, 3, 5)
	require.Len(t, chunks, 2)
	assert.Equal(t, "One. Two! Three? Four. Five.", chunks[0])
	assert.Equal(t, "Six. Seven.", chunks[1])

	assert.Equal(t, []string{"Just one sentence"}, ChunkIntoMessages("Just one sentence", 3, 5))
	assert.Empty(t, ChunkIntoMessages("", 3, 5))
}

func TestChatRespond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")

	gen := &fakeGenerator{reply: "**Hi Jane.** I hear you. That sounds hard. Tell me more. What happened next? When did it start? How do you feel now?"}
	chat := NewChatService(f.transcripts, f.avatarRepo, f.clientRepo, gen, 20, zerolog.Nop())

	conv, err := f.transcripts.ResolveConversation(ctx, Caller{SubjectID: "therapist-1", Role: models.RoleTherapist}, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)

	result, err := chat.Respond(ctx, conv, "therapist-1", "I could not sleep", "")
	require.NoError(t, err)
	assert.Equal(t, models.SenderUser, result.UserMessage.Sender)
	require.Len(t, result.Replies, 2)
	assert.Equal(t, "Hi Jane. I hear you. That sounds hard. Tell me more. What happened next?", result.Replies[0].Text)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "You are Dr. Calm")
	assert.Contains(t, gen.prompts[0], "Therapeutic theory: CBT")
	assert.Contains(t, gen.prompts[0], "Name: Jane")
	assert.Contains(t, gen.prompts[0], "Client: I could not sleep")

	msgs, err := f.transcripts.Read(ctx, conv.Key, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, models.SenderAI, msgs[1].Sender)
	assert.Equal(t, models.SenderAI, msgs[2].Sender)

	_, err = chat.Respond(ctx, conv, "therapist-1", "And today?", "")
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[1], "Conversation so far:")
	assert.Contains(t, gen.prompts[1], "Client: I could not sleep")
}

func TestChatRespondGenerationFailureKeepsUserTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")

	gen := &fakeGenerator{err: errors.New("boom")}
	chat := NewChatService(f.transcripts, f.avatarRepo, f.clientRepo, gen, 20, zerolog.Nop())

	conv, err := f.transcripts.ResolveConversation(ctx, Caller{SubjectID: "therapist-1", Role: models.RoleTherapist}, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)

	_, err = chat.Respond(ctx, conv, "therapist-1", "hello", "")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	msgs, err := f.transcripts.Read(ctx, conv.Key, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)

	_, err = chat.Respond(ctx, conv, "therapist-1", "  ", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

// flakyGenerator fails its first failures calls and then replies.
type flakyGenerator struct {
	fakeGenerator
	failures int
}

func (g *flakyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if len(g.prompts) <= g.failures {
		return "", errors.New("model overloaded")
	}
	return g.reply, nil
}

func TestChatRespondRetryReusesUserTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")
	f.grant(t, "user-1", "therapist-1", client.ClientID, avatar.AvatarID)

	gen := &flakyGenerator{fakeGenerator: fakeGenerator{reply: "I am here."}, failures: 1}
	chat := NewChatService(f.transcripts, f.avatarRepo, f.clientRepo, gen, 20, zerolog.Nop())

	conv, err := f.transcripts.ResolveConversation(ctx, Caller{SubjectID: "user-1", Role: models.RoleClient}, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)

	first, err := chat.Respond(ctx, conv, "user-1", "I feel low", "user-1#k1")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	f.clock.Set(baseTime.Add(time.Minute))
	second, err := chat.Respond(ctx, conv, "user-1", "I feel low", "user-1#k1")
	require.NoError(t, err)
	assert.Equal(t, first.UserMessage.SortKey, second.UserMessage.SortKey)
	require.Len(t, second.Replies, 1)

	require.Len(t, gen.prompts, 2)
	assert.NotContains(t, gen.prompts[1], "Conversation so far:")
	assert.Contains(t, gen.prompts[1], "Client: I feel low")

	msgs, err := f.transcripts.Read(ctx, conv.Key, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "I feel low", msgs[0].Text)
	assert.Equal(t, models.SenderAI, msgs[1].Sender)
	assert.Equal(t, "I am here.", msgs[1].Text)
}

func TestChatRespondWithDeletedAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")
	require.NoError(t, f.registry.DeleteAvatar(ctx, "therapist-1", avatar.AvatarID))

	gen := &fakeGenerator{reply: "Okay."}
	chat := NewChatService(f.transcripts, f.avatarRepo, f.clientRepo, gen, 20, zerolog.Nop())

	conv, err := f.transcripts.ResolveConversation(ctx, Caller{SubjectID: "therapist-1", Role: models.RoleTherapist}, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)

	_, err = chat.Respond(ctx, conv, "therapist-1", "hi", "")
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0], "You are Dr. Calm")
	assert.NotContains(t, gen.prompts[0], "Therapeutic theory")
}
