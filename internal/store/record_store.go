package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/telemetry"
)

const recordColumns = `id, source, external_id, title, company, location,
	salary_min, salary_max, salary_text, category, tags, url,
	published_at, fetched_at, is_remote, is_valid, last_validated_at, deleted_at`

// RecordStore implements jobs.Store on Postgres.
type RecordStore struct {
	db     DB
	logger *zap.Logger
}

// NewRecordStore wraps an existing pool or mock.
func NewRecordStore(db DB, logger *zap.Logger) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{db: db, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

const upsertQuery = `
INSERT INTO records (
	source, external_id, title, company, location,
	salary_min, salary_max, salary_text, category, tags, url,
	published_at, fetched_at, is_remote
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (source, external_id) DO UPDATE SET
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	location = EXCLUDED.location,
	salary_min = EXCLUDED.salary_min,
	salary_max = EXCLUDED.salary_max,
	salary_text = EXCLUDED.salary_text,
	tags = EXCLUDED.tags,
	url = EXCLUDED.url,
	is_remote = EXCLUDED.is_remote,
	fetched_at = EXCLUDED.fetched_at`

// UpsertBatch applies records one at a time, keyed by (source, external_id).
// Validity bookkeeping (is_valid, last_validated_at, deleted_at) is never
// touched by a scrape-driven upsert. A failing record is logged and skipped;
// the applied count is returned regardless.
func (s *RecordStore) UpsertBatch(ctx context.Context, records []jobs.Record) (int, error) {
	applied := 0
	for _, rec := range records {
		if rec.Source == "" || rec.ExternalID == "" {
			s.logger.Warn("skipping record without identity", zap.String("title", rec.Title))
			telemetry.ObserveUpsert("failed", 1)
			continue
		}
		tagsJSON, err := json.Marshal(normalizeTags(rec.Tags))
		if err != nil {
			s.logger.Error("marshal tags failed",
				zap.String("record", rec.Identity()), zap.Error(err))
			telemetry.ObserveUpsert("failed", 1)
			continue
		}
		_, err = s.db.Exec(ctx, upsertQuery,
			rec.Source,
			rec.ExternalID,
			rec.Title,
			rec.Company,
			rec.Location,
			rec.SalaryMin,
			rec.SalaryMax,
			rec.SalaryText,
			rec.Category,
			tagsJSON,
			rec.URL,
			rec.PublishedAt,
			rec.FetchedAt,
			rec.IsRemote,
		)
		if err != nil {
			s.logger.Error("record upsert failed",
				zap.String("record", rec.Identity()), zap.Error(err))
			telemetry.ObserveUpsert("failed", 1)
			continue
		}
		applied++
	}
	telemetry.ObserveUpsert("applied", applied)
	return applied, nil
}

// List returns active records, newest first, optionally filtered by source.
func (s *RecordStore) List(ctx context.Context, filter jobs.ListFilter) ([]jobs.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM records
		WHERE deleted_at IS NULL AND ($1 = '' OR source = $1)
		ORDER BY fetched_at DESC
		LIMIT $2 OFFSET $3`, recordColumns)
	rows, err := s.db.Query(ctx, query, filter.Source, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Get returns a single record by primary key.
func (s *RecordStore) Get(ctx context.Context, id int64) (jobs.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records WHERE id = $1`, recordColumns)
	rec, err := scanRecord(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.Record{}, ErrNotFound
		}
		return jobs.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListStale returns up to limit active records whose fetched_at is older than
// the cutoff, oldest first.
func (s *RecordStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]jobs.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records
		WHERE deleted_at IS NULL AND fetched_at < $1
		ORDER BY fetched_at ASC
		LIMIT $2`, recordColumns)
	rows, err := s.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MarkValidated records a probe verdict.
func (s *RecordStore) MarkValidated(ctx context.Context, id int64, at time.Time, valid bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE records SET last_validated_at = $2, is_valid = $3 WHERE id = $1`,
		id, at, valid)
	if err != nil {
		return fmt.Errorf("mark validated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchValidated advances last_validated_at only, used after a probe failed
// for transient reasons.
func (s *RecordStore) TouchValidated(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE records SET last_validated_at = $2 WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("touch validated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks an active record deleted. Already-deleted rows are left
// untouched so the lifecycle only moves forward.
func (s *RecordStore) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE records SET deleted_at = $2, is_valid = FALSE
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	return nil
}

// ListArchivable returns up to limit soft-deleted records whose deleted_at is
// older than the cutoff.
func (s *RecordStore) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]jobs.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records
		WHERE deleted_at IS NOT NULL AND deleted_at < $1
		ORDER BY deleted_at ASC
		LIMIT $2`, recordColumns)
	rows, err := s.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list archivable records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Archive copies the record into archived_records, preserving the primary
// key, and deletes the source row. Both steps commit in one transaction so a
// record is never half-archived.
func (s *RecordStore) Archive(ctx context.Context, id int64, at time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO archived_records (
			id, source, external_id, title, company, location,
			salary_min, salary_max, salary_text, category, tags, url,
			published_at, fetched_at, is_remote, is_valid, last_validated_at,
			archived_at
		)
		SELECT id, source, external_id, title, company, location,
			salary_min, salary_max, salary_text, category, tags, url,
			published_at, fetched_at, is_remote, is_valid, last_validated_at,
			$2
		FROM records WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("copy record to archive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete archived record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]jobs.Record, error) {
	var records []jobs.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (jobs.Record, error) {
	var rec jobs.Record
	var tagsJSON []byte
	err := row.Scan(
		&rec.ID,
		&rec.Source,
		&rec.ExternalID,
		&rec.Title,
		&rec.Company,
		&rec.Location,
		&rec.SalaryMin,
		&rec.SalaryMax,
		&rec.SalaryText,
		&rec.Category,
		&tagsJSON,
		&rec.URL,
		&rec.PublishedAt,
		&rec.FetchedAt,
		&rec.IsRemote,
		&rec.IsValid,
		&rec.LastValidatedAt,
		&rec.DeletedAt,
	)
	if err != nil {
		return jobs.Record{}, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &rec.Tags); err != nil {
			return jobs.Record{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return rec, nil
}

func normalizeTags(tags map[string][]string) map[string][]string {
	if tags == nil {
		return map[string][]string{}
	}
	return tags
}
