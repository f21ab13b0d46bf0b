package store

import (
	"context"
	"fmt"
)

// The composite uniqueness on (source, external_id) is load-bearing: the
// upsert path relies on the constraint, not application logic.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL,
		company TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		salary_min INTEGER,
		salary_max INTEGER,
		salary_text TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		tags JSONB NOT NULL DEFAULT '{}'::jsonb,
		url TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ,
		fetched_at TIMESTAMPTZ NOT NULL,
		is_remote BOOLEAN NOT NULL DEFAULT FALSE,
		is_valid BOOLEAN NOT NULL DEFAULT TRUE,
		last_validated_at TIMESTAMPTZ,
		deleted_at TIMESTAMPTZ,
		CONSTRAINT uq_records_source_external_id UNIQUE (source, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_fetched_at ON records (fetched_at)`,
	`CREATE INDEX IF NOT EXISTS idx_records_deleted_at ON records (deleted_at)`,
	`CREATE TABLE IF NOT EXISTS archived_records (
		id BIGINT PRIMARY KEY,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL,
		company TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		salary_min INTEGER,
		salary_max INTEGER,
		salary_text TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		tags JSONB NOT NULL DEFAULT '{}'::jsonb,
		url TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ,
		fetched_at TIMESTAMPTZ NOT NULL,
		is_remote BOOLEAN NOT NULL DEFAULT FALSE,
		is_valid BOOLEAN NOT NULL DEFAULT TRUE,
		last_validated_at TIMESTAMPTZ,
		archived_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		run_at TIMESTAMPTZ NOT NULL,
		source TEXT NOT NULL,
		total_jobs INTEGER NOT NULL DEFAULT 0,
		new_jobs INTEGER NOT NULL DEFAULT 0,
		duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
