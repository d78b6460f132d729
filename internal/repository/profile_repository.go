package repository

import (
	"context"
	"errors"
	"time"

	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
)

type ProfileRepository struct {
	store kvstore.Store
}

func NewProfileRepository(store kvstore.Store) *ProfileRepository {
	return &ProfileRepository{store: store}
}

func profileKey(subjectID string) kvstore.Key {
	return kvstore.Key{PK: userPK(subjectID), SK: profileSK}
}

// Create writes the profile only if the subject has none yet.
func (r *ProfileRepository) Create(ctx context.Context, profile models.UserProfile) error {
	item, err := kvstore.NewItem(profileKey(profile.SubjectID), profile)
	if err != nil {
		return err
	}
	if err := r.store.PutIfAbsent(ctx, item); err != nil {
		if errors.Is(err, kvstore.ErrConditionFailed) {
			return ErrProfileExists
		}
		return err
	}
	return nil
}

func (r *ProfileRepository) Get(ctx context.Context, subjectID string) (models.UserProfile, error) {
	item, err := r.store.Get(ctx, profileKey(subjectID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.UserProfile{}, ErrProfileNotFound
		}
		return models.UserProfile{}, err
	}
	var profile models.UserProfile
	err = item.Decode(&profile)
	return profile, err
}

func (r *ProfileRepository) UpdateNickname(ctx context.Context, subjectID, nickname string, now time.Time) (models.UserProfile, error) {
	item, err := r.store.Update(ctx, profileKey(subjectID), kvstore.Update{
		Set: map[string]any{"nickname": nickname, "updatedAt": now},
	})
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.UserProfile{}, ErrProfileNotFound
		}
		return models.UserProfile{}, err
	}
	var profile models.UserProfile
	err = item.Decode(&profile)
	return profile, err
}
