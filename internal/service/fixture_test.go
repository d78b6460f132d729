package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"hamo/backend/internal/config"
	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	store       *kvstore.Memory
	clock       *testClock
	profiles    *ProfileService
	registry    *RegistryService
	invites     *InvitationService
	sessions    *SessionService
	transcripts *TranscriptService

	avatarRepo *repository.AvatarRepository
	clientRepo *repository.ClientRepository
	inviteRepo *repository.InvitationRepository
	exportRepo *repository.ExportRepository
	grantRepo  *repository.AccessGrantRepository
}

func inviteConfig() config.InviteConfig {
	return config.InviteConfig{TTL: 7 * 24 * time.Hour, CodePrefix: "HAMO-", CodeBytes: 3, MaxAttempts: 5}
}

func transcriptConfig() config.TranscriptConfig {
	return config.TranscriptConfig{Scope: repository.ScopePair, DefaultLimit: 100, MaxLimit: 1000, UniqueKeys: true}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zerolog.Nop()
	store := kvstore.NewMemory()
	clock := &testClock{t: baseTime}

	f := &fixture{
		store:      store,
		clock:      clock,
		avatarRepo: repository.NewAvatarRepository(store),
		clientRepo: repository.NewClientRepository(store),
		inviteRepo: repository.NewInvitationRepository(store),
		exportRepo: repository.NewExportRepository(store),
		grantRepo:  repository.NewAccessGrantRepository(store),
	}
	sessionRepo := repository.NewChatSessionRepository(store)

	f.profiles = NewProfileService(repository.NewProfileRepository(store), log)
	f.profiles.now = clock.Now
	f.registry = NewRegistryService(f.avatarRepo, f.clientRepo, log)
	f.registry.now = clock.Now
	f.invites = NewInvitationService(f.inviteRepo, f.clientRepo, f.grantRepo, inviteConfig(), log)
	f.invites.now = clock.Now
	f.sessions = NewSessionService(sessionRepo, f.grantRepo, log)
	f.sessions.now = clock.Now
	f.transcripts = NewTranscriptService(
		repository.NewMessageRepository(store, repository.ScopePair, true),
		f.grantRepo,
		f.clientRepo,
		transcriptConfig(),
		log,
	)
	f.transcripts.now = clock.Now
	return f
}

// seedClient creates an avatar and a client that has it assigned and selected.
func (f *fixture) seedClient(t *testing.T, therapistID string) (models.Avatar, models.Client) {
	t.Helper()
	ctx := context.Background()

	avatar, err := f.registry.CreateAvatar(ctx, therapistID, AvatarInput{Name: "Dr. Calm", Theory: "CBT"})
	require.NoError(t, err)

	client, err := f.registry.CreateClient(ctx, therapistID, ClientInput{
		Name:             "Jane",
		Avatars:          []models.AvatarRef{{AvatarID: avatar.AvatarID, AvatarName: avatar.Name}},
		SelectedAvatarID: avatar.AvatarID,
	})
	require.NoError(t, err)
	return avatar, client
}

// grant gives ownerID access to the pair as if they had redeemed an invitation from
// therapistID.
func (f *fixture) grant(t *testing.T, ownerID, therapistID, clientID, avatarID string) {
	t.Helper()
	require.NoError(t, f.grantRepo.Put(context.Background(), models.AccessGrant{
		OwnerID:     ownerID,
		ClientID:    clientID,
		AvatarID:    avatarID,
		ClientName:  "Jane",
		AvatarName:  "Dr. Calm",
		TherapistID: therapistID,
		InviteCode:  "HAMO-TEST",
		GrantedAt:   f.clock.Now(),
	}))
}

// fixedRandom yields the same bytes on every read, so every generated code is identical.
type fixedRandom struct {
	b []byte
}

func (r fixedRandom) Read(p []byte) (int, error) {
	return bytes.NewReader(r.b).Read(p)
}

var kvQueryAll = kvstore.QueryOptions{}
