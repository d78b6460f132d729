package repository

import (
	"context"
	"errors"

	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

var ErrChatSessionNotFound = errors.New("chat session not found")

type ChatSessionRepository struct {
	store kvstore.Store
}

func NewChatSessionRepository(store kvstore.Store) *ChatSessionRepository {
	return &ChatSessionRepository{store: store}
}

func chatSessionKey(ownerID, clientID, avatarID string) kvstore.Key {
	return kvstore.Key{PK: userPK(ownerID), SK: chatSK(clientID, avatarID)}
}

// Put overwrites any session with the same (owner, client, avatar) identity.
func (r *ChatSessionRepository) Put(ctx context.Context, session models.ChatSession) error {
	item, err := kvstore.NewItem(chatSessionKey(session.OwnerID, session.ClientID, session.AvatarID), session)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, item)
}

func (r *ChatSessionRepository) Get(ctx context.Context, ownerID, clientID, avatarID string) (models.ChatSession, error) {
	item, err := r.store.Get(ctx, chatSessionKey(ownerID, clientID, avatarID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.ChatSession{}, ErrChatSessionNotFound
		}
		return models.ChatSession{}, err
	}
	var session models.ChatSession
	err = item.Decode(&session)
	return session, err
}

func (r *ChatSessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.ChatSession, error) {
	items, err := r.store.QueryByPrefix(ctx, userPK(ownerID), chatPrefix, kvstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.ChatSession](items)
}

func (r *ChatSessionRepository) Delete(ctx context.Context, ownerID, clientID, avatarID string) error {
	return r.store.Delete(ctx, chatSessionKey(ownerID, clientID, avatarID))
}
