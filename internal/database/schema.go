package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id          UUID PRIMARY KEY,
		source      TEXT NOT NULL,
		target      TEXT NOT NULL,
		range_start TIMESTAMPTZ NOT NULL,
		range_end   TIMESTAMPTZ NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		review_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id            UUID PRIMARY KEY,
		run_id        UUID NOT NULL REFERENCES scrape_runs(id) ON DELETE CASCADE,
		source        TEXT NOT NULL,
		title         TEXT NOT NULL,
		description   TEXT NOT NULL,
		published_at  TIMESTAMPTZ NOT NULL,
		reviewer_name TEXT,
		rating        DOUBLE PRECISION NOT NULL DEFAULT 0,
		source_url    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_run_id ON reviews(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_source_published ON reviews(source, published_at DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event(status, next_retry_at)`,
}

// Migrate creates the tables if they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
