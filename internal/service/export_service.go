package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/config"
	"hamo/backend/internal/ids"
	"hamo/backend/internal/models"
	"hamo/backend/internal/repository"
)

const TaskTranscriptExport = "transcript_export"

// ExportObjects stores rendered exports and hands out download links.
type ExportObjects interface {
	PutExport(ctx context.Context, objectKey string, body []byte) (bucket string, err error)
	PresignExport(ctx context.Context, objectKey string) (string, error)
}

type ExportService struct {
	exports     *repository.ExportRepository
	transcripts *TranscriptService
	objects     ExportObjects
	queue       *redis.Client
	stream      string
	maxMessages int
	log         zerolog.Logger
	now         func() time.Time
}

func NewExportService(
	exports *repository.ExportRepository,
	transcripts *TranscriptService,
	objects ExportObjects,
	queue *redis.Client,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *ExportService {
	return &ExportService{
		exports:     exports,
		transcripts: transcripts,
		objects:     objects,
		queue:       queue,
		stream:      cfg.Queue.Stream,
		maxMessages: cfg.Transcript.MaxLimit,
		log:         log,
		now:         utcNow,
	}
}

type ExportView struct {
	models.Export
	DownloadURL string `json:"downloadUrl,omitempty"`
}

type exportDocument struct {
	ExportID   string           `json:"exportId"`
	ClientID   string           `json:"clientId"`
	AvatarID   string           `json:"avatarId"`
	ClientName string           `json:"clientName"`
	AvatarName string           `json:"avatarName"`
	ExportedAt time.Time        `json:"exportedAt"`
	Messages   []models.Message `json:"messages"`
}

// RequestExport records a QUEUED export of the conversation and enqueues it for the worker.
// If the enqueue fails the export is marked FAILED and the error returned, so no record is
// left QUEUED without a task behind it.
func (s *ExportService) RequestExport(ctx context.Context, therapistID string, conv Conversation) (models.Export, error) {
	export := models.Export{
		OwnerID:   therapistID,
		ExportID:  ids.New(),
		UserID:    conv.Key.OwnerID,
		ClientID:  conv.Key.ClientID,
		AvatarID:  conv.Key.AvatarID,
		Status:    models.ExportStatusQueued,
		CreatedAt: s.now(),
	}
	if err := s.exports.Create(ctx, export); err != nil {
		return models.Export{}, storeErr("create export", err)
	}

	if err := s.enqueue(ctx, export); err != nil {
		s.log.Error().Err(err).Str("export_id", export.ExportID).Msg("enqueue export failed")
		if markErr := s.exports.MarkFailed(ctx, therapistID, export.ExportID, "enqueue: "+err.Error(), s.now()); markErr != nil {
			s.log.Error().Err(markErr).Str("export_id", export.ExportID).Msg("mark export failed")
		}
		return models.Export{}, apperr.Upstream("enqueue export", err)
	}
	return export, nil
}

func (s *ExportService) enqueue(ctx context.Context, export models.Export) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":     TaskTranscriptExport,
			"ownerId":  export.OwnerID,
			"exportId": export.ExportID,
		},
	}).Result()
	return err
}

func (s *ExportService) GetExport(ctx context.Context, therapistID, exportID string) (ExportView, error) {
	export, err := s.exports.Get(ctx, therapistID, exportID)
	if err != nil {
		if errors.Is(err, repository.ErrExportNotFound) {
			return ExportView{}, apperr.NotFound("export")
		}
		return ExportView{}, storeErr("get export", err)
	}

	view := ExportView{Export: export}
	if export.Status == models.ExportStatusReady && s.objects != nil {
		url, err := s.objects.PresignExport(ctx, export.ObjectKey)
		if err != nil {
			return ExportView{}, apperr.Upstream("presign export", err)
		}
		view.DownloadURL = url
	}
	return view, nil
}

// RunExport renders the transcript as JSON into object storage. Failures are recorded on
// the export before being returned.
func (s *ExportService) RunExport(ctx context.Context, ownerID, exportID string) error {
	export, err := s.exports.Get(ctx, ownerID, exportID)
	if err != nil {
		return fmt.Errorf("load export %s: %w", exportID, err)
	}
	if export.Status != models.ExportStatusQueued {
		s.log.Info().Str("export_id", exportID).Str("status", string(export.Status)).Msg("export already processed")
		return nil
	}

	bucket, objectKey, count, err := s.render(ctx, export)
	if err != nil {
		if markErr := s.exports.MarkFailed(ctx, ownerID, exportID, err.Error(), s.now()); markErr != nil {
			s.log.Error().Err(markErr).Str("export_id", exportID).Msg("mark export failed")
		}
		return err
	}

	if err := s.exports.MarkReady(ctx, ownerID, exportID, bucket, objectKey, count, s.now()); err != nil {
		return fmt.Errorf("mark export ready: %w", err)
	}
	s.log.Info().Str("export_id", exportID).Int("messages", count).Msg("export ready")
	return nil
}

func (s *ExportService) render(ctx context.Context, export models.Export) (string, string, int, error) {
	if s.objects == nil {
		return "", "", 0, errors.New("object storage not configured")
	}

	key := repository.ConversationKey{OwnerID: export.UserID, ClientID: export.ClientID, AvatarID: export.AvatarID}
	msgs, err := s.transcripts.Read(ctx, key, s.maxMessages, 0)
	if err != nil {
		return "", "", 0, err
	}

	doc := exportDocument{
		ExportID:   export.ExportID,
		ClientID:   export.ClientID,
		AvatarID:   export.AvatarID,
		ExportedAt: s.now(),
		Messages:   msgs,
	}
	if client, err := s.transcripts.clients.Get(ctx, export.OwnerID, export.ClientID); err == nil {
		doc.ClientName = client.Name
		if ref, ok := client.Avatar(export.AvatarID); ok {
			doc.AvatarName = ref.AvatarName
		}
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", "", 0, err
	}

	objectKey := path.Join(export.OwnerID, export.ClientID, export.ExportID+".json")
	bucket, err := s.objects.PutExport(ctx, objectKey, body)
	if err != nil {
		return "", "", 0, fmt.Errorf("put export: %w", err)
	}
	return bucket, objectKey, len(msgs), nil
}
