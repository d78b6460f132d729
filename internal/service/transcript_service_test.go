package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

func TestTranscriptOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := repository.ConversationKey{ClientID: "c1", AvatarID: "a1"}

	f.clock.Set(time.UnixMilli(1000))
	_, err := f.transcripts.Append(ctx, key, models.SenderUser, "A", "user-1")
	require.NoError(t, err)
	f.clock.Set(time.UnixMilli(1001))
	_, err = f.transcripts.Append(ctx, key, models.SenderAI, "B", "")
	require.NoError(t, err)
	f.clock.Set(time.UnixMilli(1002))
	_, err = f.transcripts.Append(ctx, key, models.SenderUser, "C", "user-1")
	require.NoError(t, err)

	msgs, err := f.transcripts.Read(ctx, key, 100, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "A", msgs[0].Text)
	assert.Equal(t, models.SenderAI, msgs[1].Sender)
	assert.Equal(t, int64(1002), msgs[2].CreatedAt)
}

func TestTranscriptStampsAreMonotonicPerWriter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := repository.ConversationKey{ClientID: "c1", AvatarID: "a1"}
	f.clock.Set(time.UnixMilli(5000))

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.transcripts.Append(ctx, key, models.SenderUser, text, "")
		require.NoError(t, err)
	}

	msgs, err := f.transcripts.Read(ctx, key, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{5000, 5001, 5002}, []int64{msgs[0].CreatedAt, msgs[1].CreatedAt, msgs[2].CreatedAt})
}

func TestTranscriptLiteralStampsShareAKey(t *testing.T) {
	store := kvstore.NewMemory()
	cfg := transcriptConfig()
	cfg.UniqueKeys = false
	transcripts := NewTranscriptService(
		repository.NewMessageRepository(store, repository.ScopePair, false),
		repository.NewAccessGrantRepository(store),
		repository.NewClientRepository(store),
		cfg,
		zerolog.Nop(),
	)
	transcripts.now = func() time.Time { return time.UnixMilli(7000) }
	ctx := context.Background()
	key := repository.ConversationKey{ClientID: "c1", AvatarID: "a1"}

	_, err := transcripts.Append(ctx, key, models.SenderUser, "first", "")
	require.NoError(t, err)
	_, err = transcripts.Append(ctx, key, models.SenderAI, "second", "")
	require.NoError(t, err)

	msgs, err := transcripts.Read(ctx, key, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].Text)
	assert.Equal(t, int64(7000), msgs[0].CreatedAt)
}

func TestTranscriptAppendOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := repository.ConversationKey{ClientID: "c1", AvatarID: "a1"}

	first, created, err := f.transcripts.AppendOnce(ctx, key, "user-1#k1", models.SenderUser, "hello", "user-1")
	require.NoError(t, err)
	assert.True(t, created)

	f.clock.Set(baseTime.Add(time.Second))
	again, created, err := f.transcripts.AppendOnce(ctx, key, "user-1#k1", models.SenderUser, "hello", "user-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.SortKey, again.SortKey)
	assert.Equal(t, first.CreatedAt, again.CreatedAt)

	_, _, err = f.transcripts.AppendOnce(ctx, key, "user-1#k1", models.SenderUser, "something else", "user-1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	msgs, err := f.transcripts.Read(ctx, key, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestTranscriptValidationAndLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := repository.ConversationKey{ClientID: "c1", AvatarID: "a1"}

	_, err := f.transcripts.Append(ctx, key, models.Sender("system"), "x", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.transcripts.Append(ctx, key, models.SenderUser, " ", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	for i := 0; i < 5; i++ {
		f.clock.Set(time.UnixMilli(int64(2000 + i)))
		_, err := f.transcripts.Append(ctx, key, models.SenderUser, "m", "")
		require.NoError(t, err)
	}

	msgs, err := f.transcripts.Read(ctx, key, 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = f.transcripts.Read(ctx, key, 100, 2003)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(2003), msgs[0].CreatedAt)
}

func TestResolveConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	avatar, client := f.seedClient(t, "therapist-1")

	therapist := Caller{SubjectID: "therapist-1", Role: models.RoleTherapist}
	conv, err := f.transcripts.ResolveConversation(ctx, therapist, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)
	assert.Equal(t, "therapist-1", conv.TherapistID)
	assert.Equal(t, "Dr. Calm", conv.AvatarName)

	stranger := Caller{SubjectID: "therapist-2", Role: models.RoleTherapist}
	_, err = f.transcripts.ResolveConversation(ctx, stranger, client.ClientID, avatar.AvatarID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	user := Caller{SubjectID: "user-1", Role: models.RoleClient}
	_, err = f.transcripts.ResolveConversation(ctx, user, client.ClientID, avatar.AvatarID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.grant(t, "user-1", "therapist-1", client.ClientID, avatar.AvatarID)

	conv, err = f.transcripts.ResolveConversation(ctx, user, client.ClientID, avatar.AvatarID, "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", conv.Key.OwnerID)
	assert.Equal(t, "therapist-1", conv.TherapistID)

	// A chat session alone does not open the conversation to someone else.
	other := Caller{SubjectID: "user-2", Role: models.RoleClient}
	_, err = f.sessions.CreateSession(ctx, CreateSessionInput{
		OwnerID: "user-2", ClientID: client.ClientID, AvatarID: avatar.AvatarID,
		ClientName: "Jane", AvatarName: "Dr. Calm",
	})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.transcripts.ResolveConversation(ctx, other, client.ClientID, avatar.AvatarID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.transcripts.ResolveConversation(ctx, user, "", avatar.AvatarID, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
