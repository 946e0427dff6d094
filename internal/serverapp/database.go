package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"neo4j-graphql/internal/config"
	"neo4j-graphql/internal/dbexec"
	"neo4j-graphql/internal/engine"
	"neo4j-graphql/internal/execution"
	"neo4j-graphql/internal/logging"
	"neo4j-graphql/internal/planner"

	"github.com/cenkalti/backoff/v5"
)

// maxConnectRetryInterval caps the startup connectivity backoff.
const maxConnectRetryInterval = 30 * time.Second

func openPool(cfg *config.Config) (dbexec.Pool, error) {
	db := cfg.Database
	return dbexec.NewNeo4jPool(dbexec.Neo4jConfig{
		URI:                   db.URI,
		User:                  db.User,
		Password:              db.Password,
		Database:              db.Database,
		MaxPoolSize:           db.Pool.MaxSize,
		AcquisitionTimeout:    db.Pool.AcquisitionTimeout,
		MaxConnectionLifetime: db.Pool.MaxLifetime,
	})
}

// waitForDatabase verifies connectivity, retrying with exponential backoff until
// ConnectionTimeout elapses. A zero timeout tries once.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, pool dbexec.Pool) error {
	limit := cfg.Database.ConnectionTimeout
	if limit <= 0 {
		return pool.VerifyConnectivity(ctx)
	}

	policy := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.Database.ConnectionRetryInterval,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxConnectRetryInterval,
	}
	policy.Reset()

	attempt := 0
	verify := func() (int, error) {
		attempt++
		return attempt, pool.VerifyConnectivity(ctx)
	}
	attempts, err := backoff.Retry(ctx, verify,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(limit),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("database not ready, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", wait),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("database not available after %v: %w", limit, err)
	}
	if attempts > 1 {
		logger.Info("database connection established", slog.Int("attempts", attempts))
	}
	return nil
}

func engineConfig(cfg *config.Config) engine.Config {
	s := cfg.Server
	return engine.Config{
		DefaultListLimit: s.DefaultLimit,
		MaxListLimit:     s.MaxLimit,
		BatchMaxParents:  s.BatchMaxParents,
		MaxDepth:         s.MaxDepth,
		MaxFragments:     s.MaxFragments,
		RequestDeadline:  s.RequestDeadline,
		RetryDelay:       s.RetryDelay,
		Concurrency:      s.FragmentConcurrency,
	}
}

// stateLogger reports request lifecycle transitions at debug level.
func stateLogger(logger *logging.Logger) execution.StateFunc {
	return func(s execution.State, f *planner.Fragment) {
		if !logger.Enabled(context.Background(), slog.LevelDebug) {
			return
		}
		attrs := []any{slog.String("state", s.String())}
		if f != nil {
			attrs = append(attrs, slog.Int("fragment", f.ID), slog.String("fragment_kind", f.Kind.String()))
		}
		logger.Debug("request state", attrs...)
	}
}
