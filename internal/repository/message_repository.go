package repository

import (
	"context"
	"errors"
	"fmt"

	"hamo/backend/internal/ids"
	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

const (
	ScopePair  = "pair"
	ScopeOwner = "owner"
)

// ConversationKey identifies one transcript. OwnerID only takes part in the owner scope.
type ConversationKey struct {
	OwnerID  string
	ClientID string
	AvatarID string
}

type MessageRepository struct {
	store      kvstore.Store
	scope      string
	uniqueKeys bool
}

// NewMessageRepository keys transcripts by (client, avatar) in the pair scope and by
// (owner, client, avatar) in the owner scope. Without uniqueKeys two appends in the same
// millisecond share a sort key and the later one replaces the earlier.
func NewMessageRepository(store kvstore.Store, scope string, uniqueKeys bool) *MessageRepository {
	if scope != ScopeOwner {
		scope = ScopePair
	}
	return &MessageRepository{store: store, scope: scope, uniqueKeys: uniqueKeys}
}

func (r *MessageRepository) Scope() string {
	return r.scope
}

func (r *MessageRepository) partition(key ConversationKey) string {
	pair := fmt.Sprintf("CLIENT#%s#AVATAR#%s", key.ClientID, key.AvatarID)
	if r.scope == ScopeOwner {
		return userPK(key.OwnerID) + "#" + pair
	}
	return pair
}

func (r *MessageRepository) Append(ctx context.Context, key ConversationKey, msg models.Message) (models.Message, error) {
	msg, item, err := r.messageItem(key, msg)
	if err != nil {
		return models.Message{}, err
	}
	if err := r.store.Put(ctx, item); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// AppendOnce appends msg unless a message was already appended under dedupeKey in this
// conversation, in which case the earlier message is returned with created == false.
// The claim is written before the message and dropped again if the message write fails.
func (r *MessageRepository) AppendOnce(ctx context.Context, key ConversationKey, dedupeKey string, msg models.Message) (models.Message, bool, error) {
	msg, item, err := r.messageItem(key, msg)
	if err != nil {
		return models.Message{}, false, err
	}

	claimKey := kvstore.Key{PK: item.PK, SK: dedupePrefix + dedupeKey}
	claim, err := kvstore.NewItem(claimKey, msg)
	if err != nil {
		return models.Message{}, false, err
	}
	if err := r.store.PutIfAbsent(ctx, claim); err != nil {
		if !errors.Is(err, kvstore.ErrConditionFailed) {
			return models.Message{}, false, err
		}
		existing, err := r.store.Get(ctx, claimKey)
		if err != nil {
			return models.Message{}, false, err
		}
		var earlier models.Message
		if err := existing.Decode(&earlier); err != nil {
			return models.Message{}, false, err
		}
		return earlier, false, nil
	}

	if err := r.store.Put(ctx, item); err != nil {
		_ = r.store.Delete(ctx, claimKey)
		return models.Message{}, false, err
	}
	return msg, true, nil
}

func (r *MessageRepository) messageItem(key ConversationKey, msg models.Message) (models.Message, kvstore.Item, error) {
	sk := messageSK(msg.CreatedAt)
	if r.uniqueKeys {
		sk += "#" + ids.New()
	}
	msg.ClientID = key.ClientID
	msg.AvatarID = key.AvatarID
	msg.SortKey = sk

	item, err := kvstore.NewItem(kvstore.Key{PK: r.partition(key), SK: sk}, msg)
	return msg, item, err
}

// List returns up to limit messages in ascending createdAt order. since, when positive,
// is an inclusive lower bound in unix milliseconds.
func (r *MessageRepository) List(ctx context.Context, key ConversationKey, limit int, since int64) ([]models.Message, error) {
	opts := kvstore.QueryOptions{Limit: limit}
	if since > 0 {
		opts.StartSK = messageSK(since)
	}
	items, err := r.store.QueryByPrefix(ctx, r.partition(key), messagePrefix, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Message](items)
}

// Recent returns the newest limit messages, oldest first.
func (r *MessageRepository) Recent(ctx context.Context, key ConversationKey, limit int) ([]models.Message, error) {
	items, err := r.store.QueryByPrefix(ctx, r.partition(key), messagePrefix, kvstore.QueryOptions{Descending: true, Limit: limit})
	if err != nil {
		return nil, err
	}
	msgs, err := decodeAll[models.Message](items)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
