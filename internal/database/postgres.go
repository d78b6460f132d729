package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"hamo/backend/internal/config"
	"hamo/backend/internal/kvstore"
)

func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpen)
	poolConfig.MinConns = int32(cfg.MaxIdle)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// OpenStore builds the item store named by cfg.Store.Driver. For postgres it also returns
// the pool, already migrated; the caller closes it.
func OpenStore(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (kvstore.Store, *pgxpool.Pool, error) {
	if cfg.Store.Driver != kvstore.DriverPostgres {
		log.Warn().Str("driver", cfg.Store.Driver).Msg("using non-durable item store")
		store, err := kvstore.New(cfg.Store.Driver, nil)
		return store, nil, err
	}

	pool, err := NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}

	pg := kvstore.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool, nil
}
