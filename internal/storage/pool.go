// Package storage provides point-in-time snapshot persistence of the belief
// graph's source and question tables to Postgres, for inspection outside
// the engine process. It only writes: nothing in this module reads a
// snapshot back, and engine state is rebuilt from the command log alone.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is the narrow slice of pgxpool.Pool's API that snapshot
// persistence needs. Tests substitute a fake implementing just this,
// rather than standing up a real Postgres instance.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB wraps a Postgres connection pool for belief-graph snapshot writes.
type DB struct {
	pool   execer
	closer func()
	logger *slog.Logger
}

// New creates a DB backed by a pgxpool.Pool connected to dsn.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}
	return &DB{pool: pool, closer: pool.Close, logger: logger}, nil
}

// Close shuts down the underlying connection pool.
func (db *DB) Close() {
	if db.closer != nil {
		db.closer()
	}
}

// EnsureSchema creates the snapshot tables if they do not already exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS confidis_sources (
			name TEXT PRIMARY KEY,
			quality DOUBLE PRECISION NOT NULL,
			strength DOUBLE PRECISION NOT NULL,
			snapshotted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS confidis_questions (
			name TEXT PRIMARY KEY,
			confidence DOUBLE PRECISION NOT NULL,
			weight DOUBLE PRECISION NOT NULL,
			answer_count INTEGER NOT NULL,
			snapshotted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}
