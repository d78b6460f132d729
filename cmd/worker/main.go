package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"hamo/backend/internal/cache"
	"hamo/backend/internal/config"
	"hamo/backend/internal/database"
	"hamo/backend/internal/log"
	"hamo/backend/internal/queue"
	"hamo/backend/internal/repository"
	"hamo/backend/internal/service"
	"hamo/backend/internal/storage"
	"hamo/backend/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, dbPool, err := database.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open item store")
	}
	if dbPool != nil {
		defer dbPool.Close()
	}

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	if client == nil {
		logger.Fatal().Msg("worker needs redis for the job stream")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	clients := repository.NewClientRepository(store)
	grants := repository.NewAccessGrantRepository(store)
	transcripts := service.NewTranscriptService(
		repository.NewMessageRepository(store, cfg.Transcript.Scope, cfg.Transcript.UniqueKeys),
		grants,
		clients,
		cfg.Transcript,
		logger,
	)
	exports := service.NewExportService(repository.NewExportRepository(store), transcripts, objectStore, client, cfg, logger)
	invites := service.NewInvitationService(repository.NewInvitationRepository(store), clients, grants, cfg.Invites, logger)

	processor := tasks.NewProcessor(exports, invites, cfg.Jobs.InviteAuditLimit, logger)
	consumer := queue.NewConsumer(client, cfg.Queue, logger, processor)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
