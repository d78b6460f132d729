package repository

import (
	"context"
	"errors"

	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

var ErrAccessGrantNotFound = errors.New("access grant not found")

type AccessGrantRepository struct {
	store kvstore.Store
}

func NewAccessGrantRepository(store kvstore.Store) *AccessGrantRepository {
	return &AccessGrantRepository{store: store}
}

func accessGrantKey(ownerID, clientID, avatarID string) kvstore.Key {
	return kvstore.Key{PK: userPK(ownerID), SK: grantSK(clientID, avatarID)}
}

// Put records the grant; redeeming a second invitation for the same pair replaces it.
func (r *AccessGrantRepository) Put(ctx context.Context, grant models.AccessGrant) error {
	item, err := kvstore.NewItem(accessGrantKey(grant.OwnerID, grant.ClientID, grant.AvatarID), grant)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, item)
}

func (r *AccessGrantRepository) Get(ctx context.Context, ownerID, clientID, avatarID string) (models.AccessGrant, error) {
	item, err := r.store.Get(ctx, accessGrantKey(ownerID, clientID, avatarID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.AccessGrant{}, ErrAccessGrantNotFound
		}
		return models.AccessGrant{}, err
	}
	var grant models.AccessGrant
	err = item.Decode(&grant)
	return grant, err
}
