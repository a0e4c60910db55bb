// Package app wires configuration into the loggers, stores and caches the
// commands share.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"social-volatility/internal/config"
	"social-volatility/internal/logger"
	"social-volatility/internal/model"
	"social-volatility/internal/observability"
	"social-volatility/internal/pipeline"
	chstore "social-volatility/internal/storage/clickhouse"
	"social-volatility/internal/storage/migrations"
	pgstore "social-volatility/internal/storage/postgres"
)

// Setup loads the configuration (with SV_* overrides) and builds the logger.
// The returned closer releases the log destination.
func Setup(configPath string) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log, closer, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, closer, nil
}

// OpenStores returns the stores selected by cfg.Storage. The database backend
// keeps raw inputs in PostgreSQL and derived rows in ClickHouse.
func OpenStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (pipeline.Stores, func(), error) {
	if cfg.Storage.Backend != config.BackendDatabase {
		log.Info().Msg("using in-memory storage")
		return pipeline.MemoryStores().Instrument(observability.DefaultMetrics, "memory", "memory"), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, pgstore.WithMaxConns(int32(cfg.Concurrency*2)))
	if err != nil {
		return pipeline.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	var conn *chstore.Conn
	if cfg.Storage.Migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return pipeline.Stores{}, nil, err
		}
		log.Info().Strs("files", applied).Msg("postgres migrations applied")

		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return pipeline.Stores{}, nil, err
		}
		log.Info().Msg("clickhouse migrations applied")
	} else {
		conn, err = chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return pipeline.Stores{}, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
	}

	stores := pipeline.Stores{
		Prices: pgstore.NewPriceStore(pool),
		Tweets: pgstore.NewTweetStore(pool),

		Volatility:  chstore.NewVolatilityStore(conn),
		Samples:     chstore.NewSampleStore(conn),
		Evaluations: chstore.NewEvaluationStore(conn),
	}.Instrument(observability.DefaultMetrics, "postgres", "clickhouse")
	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// OpenCache connects the Redis prediction cache. It returns a nil cache when
// no address is configured.
func OpenCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (model.PredictionCache, func(), error) {
	if cfg.Cache.RedisAddr == "" {
		return nil, func() {}, nil
	}
	c, err := model.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("prediction cache enabled")
	return c, func() { c.Close() }, nil
}
