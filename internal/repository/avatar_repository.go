package repository

import (
	"context"
	"errors"
	"time"

	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

var ErrAvatarNotFound = errors.New("avatar not found")

type AvatarRepository struct {
	store kvstore.Store
}

func NewAvatarRepository(store kvstore.Store) *AvatarRepository {
	return &AvatarRepository{store: store}
}

func avatarKey(ownerID, avatarID string) kvstore.Key {
	return kvstore.Key{PK: userPK(ownerID), SK: avatarPrefix + avatarID}
}

func (r *AvatarRepository) Create(ctx context.Context, avatar models.Avatar) error {
	item, err := kvstore.NewItem(avatarKey(avatar.OwnerID, avatar.AvatarID), avatar)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, item)
}

func (r *AvatarRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Avatar, error) {
	items, err := r.store.QueryByPrefix(ctx, userPK(ownerID), avatarPrefix, kvstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Avatar](items)
}

func (r *AvatarRepository) Get(ctx context.Context, ownerID, avatarID string) (models.Avatar, error) {
	item, err := r.store.Get(ctx, avatarKey(ownerID, avatarID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.Avatar{}, ErrAvatarNotFound
		}
		return models.Avatar{}, err
	}
	var avatar models.Avatar
	err = item.Decode(&avatar)
	return avatar, err
}

// Update merges fields into the stored avatar and stamps updatedAt.
func (r *AvatarRepository) Update(ctx context.Context, ownerID, avatarID string, fields map[string]any, now time.Time) (models.Avatar, error) {
	set := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		set[k] = v
	}
	set["updatedAt"] = now

	item, err := r.store.Update(ctx, avatarKey(ownerID, avatarID), kvstore.Update{Set: set})
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.Avatar{}, ErrAvatarNotFound
		}
		return models.Avatar{}, err
	}
	var avatar models.Avatar
	err = item.Decode(&avatar)
	return avatar, err
}

func (r *AvatarRepository) Delete(ctx context.Context, ownerID, avatarID string) error {
	return r.store.Delete(ctx, avatarKey(ownerID, avatarID))
}
