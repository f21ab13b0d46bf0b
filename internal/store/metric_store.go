package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/jobs"
)

// MetricStore persists per-run scrape metrics.
type MetricStore struct {
	db     DB
	logger *zap.Logger
}

func NewMetricStore(db DB, logger *zap.Logger) (*MetricStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricStore{db: db, logger: logger}, nil
}

// RecordRun appends one scrape-run row.
func (s *MetricStore) RecordRun(ctx context.Context, m jobs.RunMetric) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO metrics (run_at, source, total_jobs, new_jobs, duration_seconds)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.RunAt, m.Source, m.TotalJobs, m.NewJobs, m.DurationSeconds)
	if err != nil {
		return fmt.Errorf("record run metric: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *MetricStore) ListRuns(ctx context.Context, limit int) ([]jobs.RunMetric, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, run_at, source, total_jobs, new_jobs, duration_seconds
		 FROM metrics ORDER BY run_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list run metrics: %w", err)
	}
	defer rows.Close()

	var metrics []jobs.RunMetric
	for rows.Next() {
		var m jobs.RunMetric
		if err := rows.Scan(&m.ID, &m.RunAt, &m.Source, &m.TotalJobs, &m.NewJobs, &m.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan run metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run metrics: %w", err)
	}
	return metrics, nil
}
