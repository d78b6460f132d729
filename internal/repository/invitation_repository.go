package repository

import (
	"context"
	"errors"
	"time"

	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

var (
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrInvitationNotPending = errors.New("invitation is no longer pending")
	ErrCodeTaken            = errors.New("invite code already reserved")
)

// codeReservation claims an invite code globally. The invitation itself lives under the
// therapist's partition, so uniqueness cannot come from its own key.
type codeReservation struct {
	InviteCode string    `json:"inviteCode"`
	OwnerID    string    `json:"ownerId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type InvitationRepository struct {
	store kvstore.Store
}

func NewInvitationRepository(store kvstore.Store) *InvitationRepository {
	return &InvitationRepository{store: store}
}

func invitationKey(ownerID, code string) kvstore.Key {
	return kvstore.Key{PK: userPK(ownerID), SK: invitePrefix + code}
}

func (r *InvitationRepository) ReserveCode(ctx context.Context, code, ownerID string, now time.Time) error {
	item, err := kvstore.NewItem(kvstore.Key{PK: inviteIndexPK(code), SK: codeSK}, codeReservation{
		InviteCode: code,
		OwnerID:    ownerID,
		CreatedAt:  now,
	})
	if err != nil {
		return err
	}
	if err := r.store.PutIfAbsent(ctx, item); err != nil {
		if errors.Is(err, kvstore.ErrConditionFailed) {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (r *InvitationRepository) Create(ctx context.Context, invite models.Invitation) error {
	item, err := kvstore.NewItem(invitationKey(invite.OwnerID, invite.InviteCode), invite)
	if err != nil {
		return err
	}
	item.IndexPK = inviteIndexPK(invite.InviteCode)
	item.IndexSK = statusSK(string(invite.Status))
	return r.store.Put(ctx, item)
}

// FindPending looks the code up through the secondary index. Accepted codes are indexed
// under a different status and therefore miss.
func (r *InvitationRepository) FindPending(ctx context.Context, code string) (models.Invitation, error) {
	items, err := r.store.QueryByIndex(ctx, inviteIndexPK(code), statusSK(string(models.InviteStatusPending)), 1)
	if err != nil {
		return models.Invitation{}, err
	}
	if len(items) == 0 {
		return models.Invitation{}, ErrInvitationNotFound
	}
	var invite models.Invitation
	err = items[0].Decode(&invite)
	return invite, err
}

// MarkAccepted transitions a PENDING invitation to ACCEPTED in one conditional write.
func (r *InvitationRepository) MarkAccepted(ctx context.Context, ownerID, code, redeemerID string, now time.Time) (models.Invitation, error) {
	indexSK := statusSK(string(models.InviteStatusAccepted))
	item, err := r.store.Update(ctx, invitationKey(ownerID, code), kvstore.Update{
		Set: map[string]any{
			"status":     models.InviteStatusAccepted,
			"acceptedAt": now,
			"acceptedBy": redeemerID,
		},
		IndexSK:    &indexSK,
		Conditions: []kvstore.Condition{{Attr: "status", Equals: string(models.InviteStatusPending)}},
	})
	switch {
	case errors.Is(err, kvstore.ErrConditionFailed):
		return models.Invitation{}, ErrInvitationNotPending
	case errors.Is(err, kvstore.ErrNotFound):
		return models.Invitation{}, ErrInvitationNotFound
	case err != nil:
		return models.Invitation{}, err
	}
	var invite models.Invitation
	err = item.Decode(&invite)
	return invite, err
}

func (r *InvitationRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Invitation, error) {
	items, err := r.store.QueryByPrefix(ctx, userPK(ownerID), invitePrefix, kvstore.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Invitation](items)
}

// ListPending returns one page of PENDING invitations across all therapists. The returned
// key resumes the scan; it is zero once the last page has been read.
func (r *InvitationRepository) ListPending(ctx context.Context, after kvstore.Key, limit int) ([]models.Invitation, kvstore.Key, error) {
	items, err := r.store.ScanIndex(ctx, statusSK(string(models.InviteStatusPending)), kvstore.ScanOptions{After: after, Limit: limit})
	if err != nil {
		return nil, kvstore.Key{}, err
	}
	invites, err := decodeAll[models.Invitation](items)
	if err != nil {
		return nil, kvstore.Key{}, err
	}
	var next kvstore.Key
	if limit > 0 && len(items) == limit {
		next = items[len(items)-1].Key
	}
	return invites, next, nil
}
