package repository

import (
	"context"
	"errors"
	"time"

	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

var ErrClientNotFound = errors.New("client not found")

type ClientRepository struct {
	store kvstore.Store
}

func NewClientRepository(store kvstore.Store) *ClientRepository {
	return &ClientRepository{store: store}
}

func clientKey(ownerID, clientID string) kvstore.Key {
	return kvstore.Key{PK: userPK(ownerID), SK: clientPrefix + clientID}
}

func (r *ClientRepository) Create(ctx context.Context, client models.Client) error {
	if client.Avatars == nil {
		client.Avatars = []models.AvatarRef{}
	}
	item, err := kvstore.NewItem(clientKey(client.OwnerID, client.ClientID), client)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, item)
}

func (r *ClientRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Client, error) {
	items, err := r.store.QueryByPrefix(ctx, userPK(ownerID), clientPrefix, kvstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Client](items)
}

func (r *ClientRepository) Get(ctx context.Context, ownerID, clientID string) (models.Client, error) {
	item, err := r.store.Get(ctx, clientKey(ownerID, clientID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.Client{}, ErrClientNotFound
		}
		return models.Client{}, err
	}
	var client models.Client
	err = item.Decode(&client)
	return client, err
}

func (r *ClientRepository) Update(ctx context.Context, ownerID, clientID string, fields map[string]any, now time.Time) (models.Client, error) {
	set := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		set[k] = v
	}
	set["updatedAt"] = now

	item, err := r.store.Update(ctx, clientKey(ownerID, clientID), kvstore.Update{Set: set})
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.Client{}, ErrClientNotFound
		}
		return models.Client{}, err
	}
	var client models.Client
	err = item.Decode(&client)
	return client, err
}

func (r *ClientRepository) Delete(ctx context.Context, ownerID, clientID string) error {
	return r.store.Delete(ctx, clientKey(ownerID, clientID))
}
