package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// retryPolicy bounds how long startup waits for the database.
type retryPolicy struct {
	pingTimeout    time.Duration
	maxWait        time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var defaultRetryPolicy = retryPolicy{
	pingTimeout:    5 * time.Second,
	maxWait:        30 * time.Second,
	initialBackoff: 500 * time.Millisecond,
	maxBackoff:     5 * time.Second,
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// openDatabase establishes a database connection and retries until the instance responds.
func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	attempts, err := waitForDatabase(ctx, db, defaultRetryPolicy, log.Logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Int("attempts", attempts).Msg("database connected")
	return db, nil
}

// waitForDatabase pings db until it answers, the policy's wait runs out, or ctx
// is done. It returns the number of pings made.
func waitForDatabase(ctx context.Context, db pinger, policy retryPolicy, logger zerolog.Logger) (int, error) {
	deadline := time.Now().Add(policy.maxWait)
	backoff := policy.initialBackoff

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, policy.pingTimeout)
		err := db.PingContext(pingCtx)
		cancel()

		if err == nil {
			return attempt, nil
		}

		if ctx.Err() != nil || time.Now().Add(backoff).After(deadline) {
			return attempt, fmt.Errorf("ping database after %d attempts: %w", attempt, err)
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", backoff).
			Dur("max_wait", policy.maxWait).
			Msg("database not ready")

		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("ping database after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > policy.maxBackoff {
			backoff = policy.maxBackoff
		}
	}
}
