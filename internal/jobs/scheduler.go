package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"hamo/backend/internal/config"
	"hamo/backend/internal/tasks"
)

// Scheduler enqueues periodic maintenance tasks onto the job stream.
type Scheduler struct {
	cron   *cron.Cron
	queue  *redis.Client
	stream string
	cfg    config.JobsConfig
	log    zerolog.Logger
}

func NewScheduler(queue *redis.Client, stream string, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		queue:  queue,
		stream: stream,
		cfg:    cfg,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.cfg.InviteAuditSpec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.InviteAuditSpec, s.enqueueInviteAudit); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the schedule; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueueInviteAudit() {
	if err := s.enqueueTask(map[string]any{
		"type": tasks.TaskInviteAudit,
	}); err != nil {
		s.log.Error().Err(err).Msg("enqueue invite audit failed")
	}
}

func (s *Scheduler) enqueueTask(payload map[string]any) error {
	if s.queue == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: payload,
	}).Result()
	return err
}
