package jobs

import (
	"context"
	"time"
)

// Store persists canonical job records and drives the retention state machine.
type Store interface {
	// UpsertBatch applies records one at a time, keyed by (source, external_id).
	// A failing record is logged and skipped; the count of applied records is
	// returned even when some items fail.
	UpsertBatch(ctx context.Context, records []Record) (int, error)

	// List returns active records page by page, optionally filtered by source.
	List(ctx context.Context, filter ListFilter) ([]Record, error)

	// Get returns a single record by primary key.
	Get(ctx context.Context, id int64) (Record, error)

	// ListStale returns up to limit active records whose fetched_at is older
	// than the cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)

	// MarkValidated records a probe outcome: last_validated_at always moves
	// forward, is_valid is updated to the probe verdict.
	MarkValidated(ctx context.Context, id int64, at time.Time, valid bool) error

	// TouchValidated advances last_validated_at without changing is_valid,
	// used when a probe failed for transient reasons.
	TouchValidated(ctx context.Context, id int64, at time.Time) error

	// SoftDelete sets deleted_at and clears is_valid on an active record.
	SoftDelete(ctx context.Context, id int64, at time.Time) error

	// ListArchivable returns up to limit soft-deleted records whose deleted_at
	// is older than the cutoff.
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)

	// Archive copies the record into the archive table (preserving its primary
	// key) and removes the source row, atomically per record.
	Archive(ctx context.Context, id int64, at time.Time) error
}

// MetricStore appends immutable per-run metrics rows.
type MetricStore interface {
	RecordRun(ctx context.Context, metric RunMetric) error
	ListRuns(ctx context.Context, limit int) ([]RunMetric, error)
}

// Scraper is the capability every source unit implements. Fetch returns the
// normalized records found in one run; implementations own their rate limits
// and within-run deduplication.
type Scraper interface {
	Fetch(ctx context.Context) ([]Record, error)
	SourceName() string
	ShouldRun() bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces work-item IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
