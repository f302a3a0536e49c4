// Package postgres provides the Postgres-backed ingestion store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrAddressNotFound reports a tag-association attempt for an address
// that was never upserted. It is an input-contract violation, distinct
// from transient storage failures.
var ErrAddressNotFound = errors.New("address not present for tag association")

// Config controls the Postgres connection used for ingestion.
type Config struct {
	DSN      string
	MaxConns int32
	// Startup connectivity is retried this many times with a fixed
	// delay; exhaustion is fatal to the process.
	ConnectAttempts int
	ConnectDelay    time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// IngestStore idempotently upserts addresses, tag categories, tags and
// address-tag relations.
type IngestStore struct {
	pool   querier
	logger *zap.Logger
}

// Connect creates a pool and verifies connectivity with bounded
// retries before returning a store.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*IngestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		if attempt >= attempts {
			pool.Close()
			return nil, fmt.Errorf("ping postgres after %d attempts: %w", attempt, err)
		}
		logger.Warn("postgres not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.ConnectDelay):
		}
	}
	return &IngestStore{pool: pool, logger: logger}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier, logger *zap.Logger) *IngestStore {
	return &IngestStore{pool: pool, logger: logger}
}

// Close releases the underlying pool resources.
func (s *IngestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
