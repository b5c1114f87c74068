package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the submissions table if needed. The CHECK constraints
// mirror the status invariants so a buggy writer cannot persist a done row
// without an output or a failed row without an error.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('queued','processing','done','failed')),
	replacements JSONB NOT NULL DEFAULT '[]'::jsonb,
	output_location TEXT,
	replaced_count INTEGER,
	error_kind TEXT,
	error_message TEXT,
	rating INTEGER CHECK (rating BETWEEN 1 AND 5),
	rating_note TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT submissions_done_has_output CHECK ((status = 'done') = (output_location IS NOT NULL)),
	CONSTRAINT submissions_failed_has_error CHECK ((status = 'failed') = (error_message IS NOT NULL))
);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC, id DESC);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
