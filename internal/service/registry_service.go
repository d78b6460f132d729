package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/ids"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

// RegistryService manages a therapist's avatars and clients. Deletes never cascade:
// a deleted avatar stays referenced by clients and pending invitations.
type RegistryService struct {
	avatars *repository.AvatarRepository
	clients *repository.ClientRepository
	log     zerolog.Logger
	now     func() time.Time
}

func NewRegistryService(avatars *repository.AvatarRepository, clients *repository.ClientRepository, log zerolog.Logger) *RegistryService {
	return &RegistryService{
		avatars: avatars,
		clients: clients,
		log:     log,
		now:     utcNow,
	}
}

type AvatarInput struct {
	Name        string
	Theory      string
	Methodology string
	Principles  string
}

func (s *RegistryService) CreateAvatar(ctx context.Context, ownerID string, input AvatarInput) (models.Avatar, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Avatar{}, apperr.Validation("avatar name is required")
	}

	avatar := models.Avatar{
		OwnerID:     ownerID,
		AvatarID:    ids.UUID(),
		Name:        name,
		Theory:      input.Theory,
		Methodology: input.Methodology,
		Principles:  input.Principles,
		CreatedAt:   s.now(),
	}
	if err := s.avatars.Create(ctx, avatar); err != nil {
		return models.Avatar{}, storeErr("create avatar", err)
	}
	s.log.Info().Str("owner_id", ownerID).Str("avatar_id", avatar.AvatarID).Msg("avatar created")
	return avatar, nil
}

func (s *RegistryService) ListAvatars(ctx context.Context, ownerID string) ([]models.Avatar, error) {
	avatars, err := s.avatars.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list avatars", err)
	}
	return avatars, nil
}

func (s *RegistryService) GetAvatar(ctx context.Context, ownerID, avatarID string) (models.Avatar, error) {
	avatar, err := s.avatars.Get(ctx, ownerID, avatarID)
	if err != nil {
		if errors.Is(err, repository.ErrAvatarNotFound) {
			return models.Avatar{}, apperr.NotFound("avatar")
		}
		return models.Avatar{}, storeErr("get avatar", err)
	}
	return avatar, nil
}

func (s *RegistryService) UpdateAvatar(ctx context.Context, ownerID, avatarID string, patch models.AvatarPatch) (models.Avatar, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Avatar{}, apperr.Validation("avatar name cannot be empty")
		}
		patch.Name = &name
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return models.Avatar{}, apperr.Validation("no fields to update")
	}

	avatar, err := s.avatars.Update(ctx, ownerID, avatarID, fields, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrAvatarNotFound) {
			return models.Avatar{}, apperr.NotFound("avatar")
		}
		return models.Avatar{}, storeErr("update avatar", err)
	}
	return avatar, nil
}

func (s *RegistryService) DeleteAvatar(ctx context.Context, ownerID, avatarID string) error {
	if err := s.avatars.Delete(ctx, ownerID, avatarID); err != nil {
		return storeErr("delete avatar", err)
	}
	return nil
}

type ClientInput struct {
	Name             string
	Sex              string
	Age              string
	Avatars          []models.AvatarRef
	SelectedAvatarID string
	EmotionPattern   string
	Personality      string
	Cognition        string
	Goals            string
	Principles       string
}

func (s *RegistryService) CreateClient(ctx context.Context, ownerID string, input ClientInput) (models.Client, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Client{}, apperr.Validation("client name is required")
	}

	now := s.now()
	client := models.Client{
		OwnerID:          ownerID,
		ClientID:         ids.UUID(),
		Name:             name,
		Sex:              input.Sex,
		Age:              input.Age,
		Avatars:          input.Avatars,
		SelectedAvatarID: input.SelectedAvatarID,
		EmotionPattern:   input.EmotionPattern,
		Personality:      input.Personality,
		Cognition:        input.Cognition,
		Goals:            input.Goals,
		Principles:       input.Principles,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if client.Avatars == nil {
		client.Avatars = []models.AvatarRef{}
	}
	if err := s.clients.Create(ctx, client); err != nil {
		return models.Client{}, storeErr("create client", err)
	}
	s.log.Info().Str("owner_id", ownerID).Str("client_id", client.ClientID).Msg("client created")
	return client, nil
}

func (s *RegistryService) ListClients(ctx context.Context, ownerID string) ([]models.Client, error) {
	clients, err := s.clients.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeErr("list clients", err)
	}
	return clients, nil
}

func (s *RegistryService) GetClient(ctx context.Context, ownerID, clientID string) (models.Client, error) {
	client, err := s.clients.Get(ctx, ownerID, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return models.Client{}, apperr.NotFound("client")
		}
		return models.Client{}, storeErr("get client", err)
	}
	return client, nil
}

func (s *RegistryService) UpdateClient(ctx context.Context, ownerID, clientID string, patch models.ClientPatch) (models.Client, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Client{}, apperr.Validation("client name cannot be empty")
		}
		patch.Name = &name
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return models.Client{}, apperr.Validation("no fields to update")
	}

	client, err := s.clients.Update(ctx, ownerID, clientID, fields, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return models.Client{}, apperr.NotFound("client")
		}
		return models.Client{}, storeErr("update client", err)
	}
	return client, nil
}

func (s *RegistryService) DeleteClient(ctx context.Context, ownerID, clientID string) error {
	if err := s.clients.Delete(ctx, ownerID, clientID); err != nil {
		return storeErr("delete client", err)
	}
	return nil
}
