package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hamo/backend/internal/models"
	"hamo/backend/internal/service"
)

const TaskInviteAudit = "invite_audit"

type ExportRunner interface {
	RunExport(ctx context.Context, ownerID, exportID string) error
}

type InviteAuditor interface {
	AuditStale(ctx context.Context, now time.Time, limit int) ([]models.Invitation, error)
}

// Processor dispatches job stream messages by their type field.
type Processor struct {
	exports    ExportRunner
	invites    InviteAuditor
	auditLimit int
	logger     zerolog.Logger
	now        func() time.Time
}

type TaskPayload struct {
	Type     string `json:"type"`
	OwnerID  string `json:"ownerId"`
	ExportID string `json:"exportId"`
}

func NewProcessor(exports ExportRunner, invites InviteAuditor, auditLimit int, logger zerolog.Logger) *Processor {
	return &Processor{
		exports:    exports,
		invites:    invites,
		auditLimit: auditLimit,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case service.TaskTranscriptExport:
		return p.handleExport(ctx, payload)
	case TaskInviteAudit:
		return p.handleInviteAudit(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleExport(ctx context.Context, payload TaskPayload) error {
	if payload.OwnerID == "" || payload.ExportID == "" {
		p.logger.Warn().Interface("payload", payload).Msg("export task missing ids, dropping")
		return nil
	}
	return p.exports.RunExport(ctx, payload.OwnerID, payload.ExportID)
}

func (p *Processor) handleInviteAudit(ctx context.Context) error {
	stale, err := p.invites.AuditStale(ctx, p.now(), p.auditLimit)
	if err != nil {
		return fmt.Errorf("invite audit: %w", err)
	}
	p.logger.Info().Int("stale", len(stale)).Msg("invite audit finished")
	return nil
}
