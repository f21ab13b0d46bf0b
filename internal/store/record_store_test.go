package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/jobs"
)

var recordRowColumns = []string{
	"id", "source", "external_id", "title", "company", "location",
	"salary_min", "salary_max", "salary_text", "category", "tags", "url",
	"published_at", "fetched_at", "is_remote", "is_valid", "last_validated_at", "deleted_at",
}

func newMockStore(t *testing.T) (*RecordStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewRecordStore(mock, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func sampleRecord(source, externalID string) jobs.Record {
	return jobs.Record{
		Source:     source,
		ExternalID: externalID,
		Title:      "Backend Engineer",
		Company:    "Acme",
		URL:        "https://acme.example/jobs/1",
		FetchedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpsertBatchCountsOnlyApplied(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	good := sampleRecord("tavily", "abc")
	bad := sampleRecord("tavily", "def")

	mock.ExpectExec("INSERT INTO records").
		WithArgs(good.Source, good.ExternalID, good.Title, good.Company, good.Location,
			good.SalaryMin, good.SalaryMax, good.SalaryText, good.Category,
			pgxmock.AnyArg(), good.URL, good.PublishedAt, good.FetchedAt, good.IsRemote).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO records").
		WithArgs(bad.Source, bad.ExternalID, bad.Title, bad.Company, bad.Location,
			bad.SalaryMin, bad.SalaryMax, bad.SalaryText, bad.Category,
			pgxmock.AnyArg(), bad.URL, bad.PublishedAt, bad.FetchedAt, bad.IsRemote).
		WillReturnError(errors.New("connection reset"))

	applied, err := s.UpsertBatch(context.Background(), []jobs.Record{good, bad})
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchSkipsRecordsWithoutIdentity(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	applied, err := s.UpsertBatch(context.Background(), []jobs.Record{
		{Title: "No identity"},
	})
	require.NoError(t, err)
	require.Zero(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsErrNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM records WHERE id").
		WithArgs(int64(404)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListScansRecords(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	fetched := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(recordRowColumns).AddRow(
		int64(7), "tavily", "abc", "Backend Engineer", "Acme", "Berlin",
		(*int)(nil), (*int)(nil), "", "engineering", []byte(`{"skills":["Go"]}`), "https://acme.example/jobs/1",
		(*time.Time)(nil), fetched, true, true, (*time.Time)(nil), (*time.Time)(nil),
	)
	mock.ExpectQuery("SELECT (.+) FROM records").
		WithArgs("tavily", 10, 0).
		WillReturnRows(rows)

	records, err := s.List(context.Background(), jobs.ListFilter{Source: "tavily", Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(7), records[0].ID)
	require.Equal(t, []string{"Go"}, records[0].Tags["skills"])
	require.True(t, records[0].IsRemote)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteOnlyTouchesActiveRows(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	at := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("deleted_at IS NULL")).
		WithArgs(int64(7), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	// A row already soft-deleted matches nothing, and that is not an error.
	require.NoError(t, s.SoftDelete(context.Background(), 7, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkValidatedMissingRecord(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE records SET last_validated_at").
		WithArgs(int64(99), at, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkValidated(context.Background(), 99, at, false)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveCopiesThenDeletesInOneTx(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	at := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO archived_records").
		WithArgs(int64(7), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM records").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Archive(context.Background(), 7, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveMissingRecordRollsBack(t *testing.T) {
	t.Parallel()
	s, mock := newMockStore(t)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO archived_records").
		WithArgs(int64(99), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	err := s.Archive(context.Background(), 99, at)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricStoreRoundTrip(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	ms, err := NewMetricStore(mock, zap.NewNop())
	require.NoError(t, err)

	runAt := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO metrics").
		WithArgs(runAt, "tavily", 42, 5, 12.5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, ms.RecordRun(context.Background(), jobs.RunMetric{
		RunAt: runAt, Source: "tavily", TotalJobs: 42, NewJobs: 5, DurationSeconds: 12.5,
	}))

	rows := pgxmock.NewRows([]string{"id", "run_at", "source", "total_jobs", "new_jobs", "duration_seconds"}).
		AddRow(int64(1), runAt, "tavily", 42, 5, 12.5)
	mock.ExpectQuery("SELECT (.+) FROM metrics").
		WithArgs(30).
		WillReturnRows(rows)

	metrics, err := ms.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.Equal(t, 42, metrics[0].TotalJobs)
	require.NoError(t, mock.ExpectationsWereMet())
}
