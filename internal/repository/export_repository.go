package repository

import (
	"context"
	"errors"
	"time"

	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/models"
)

var ErrExportNotFound = errors.New("export not found")

type ExportRepository struct {
	store kvstore.Store
}

func NewExportRepository(store kvstore.Store) *ExportRepository {
	return &ExportRepository{store: store}
}

func exportKey(ownerID, exportID string) kvstore.Key {
	return kvstore.Key{PK: userPK(ownerID), SK: exportPrefix + exportID}
}

func (r *ExportRepository) Create(ctx context.Context, export models.Export) error {
	item, err := kvstore.NewItem(exportKey(export.OwnerID, export.ExportID), export)
	if err != nil {
		return err
	}
	return r.store.PutIfAbsent(ctx, item)
}

func (r *ExportRepository) Get(ctx context.Context, ownerID, exportID string) (models.Export, error) {
	item, err := r.store.Get(ctx, exportKey(ownerID, exportID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return models.Export{}, ErrExportNotFound
		}
		return models.Export{}, err
	}
	var export models.Export
	err = item.Decode(&export)
	return export, err
}

func (r *ExportRepository) MarkReady(ctx context.Context, ownerID, exportID, bucket, objectKey string, messages int, now time.Time) error {
	return r.update(ctx, ownerID, exportID, map[string]any{
		"status":    models.ExportStatusReady,
		"bucket":    bucket,
		"objectKey": objectKey,
		"messages":  messages,
		"updatedAt": now,
	})
}

func (r *ExportRepository) MarkFailed(ctx context.Context, ownerID, exportID, reason string, now time.Time) error {
	return r.update(ctx, ownerID, exportID, map[string]any{
		"status":    models.ExportStatusFailed,
		"error":     reason,
		"updatedAt": now,
	})
}

func (r *ExportRepository) update(ctx context.Context, ownerID, exportID string, set map[string]any) error {
	_, err := r.store.Update(ctx, exportKey(ownerID, exportID), kvstore.Update{Set: set})
	if errors.Is(err, kvstore.ErrNotFound) {
		return ErrExportNotFound
	}
	return err
}
