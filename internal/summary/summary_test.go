package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobintel/job-intel/internal/jobs"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeStore struct {
	jobs.Store
	records []jobs.Record
}

func (s *fakeStore) List(_ context.Context, filter jobs.ListFilter) ([]jobs.Record, error) {
	if filter.Offset >= len(s.records) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[filter.Offset:end], nil
}

type fakeMetrics struct {
	runs []jobs.RunMetric
	err  error
}

func (m *fakeMetrics) RecordRun(context.Context, jobs.RunMetric) error { return nil }
func (m *fakeMetrics) ListRuns(context.Context, int) ([]jobs.RunMetric, error) {
	return m.runs, m.err
}

func record(id int64, opts func(*jobs.Record)) jobs.Record {
	rec := jobs.Record{
		ID:        id,
		Source:    "tavily",
		Title:     "Backend Engineer",
		Company:   "Acme",
		URL:       "https://acme.example/jobs/1",
		FetchedAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
	if opts != nil {
		opts(&rec)
	}
	return rec
}

func TestGenerateAggregatesActiveRecords(t *testing.T) {
	t.Parallel()

	store := &fakeStore{records: []jobs.Record{
		record(1, func(r *jobs.Record) {
			r.IsRemote = true
			r.Location = "Berlin, Germany"
			r.Tags = map[string][]string{"skills": {"Go", "Kubernetes"}}
		}),
		record(2, func(r *jobs.Record) {
			r.Location = "Munich, Germany"
			r.Tags = map[string][]string{"skills": {"Go"}, "innovations": {"LLMs"}}
		}),
		record(3, func(r *jobs.Record) {
			r.Title = "Station Technician"
			r.Tags = map[string][]string{"rare": {"Polar"}}
		}),
		record(4, nil),
	}}
	metrics := &fakeMetrics{runs: []jobs.RunMetric{
		{RunAt: time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC), Source: "tavily", TotalJobs: 40, NewJobs: 4},
	}}

	g := NewGenerator(store, metrics, fixedClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}, nil)
	s, err := g.Generate(context.Background())
	require.NoError(t, err)

	require.Equal(t, 4, s.TotalActive)
	require.InDelta(t, 25.0, s.RemotePercent, 0.001)
	require.Equal(t, []TagCount{{Tag: "Go", Count: 2}, {Tag: "Kubernetes", Count: 1}}, s.TopSkills)
	require.Equal(t, []TagCount{{Tag: "LLMs", Count: 1}}, s.TopInnovations)
	require.Equal(t, []TagCount{{Tag: "Germany", Count: 2}}, s.Locations)
	require.Len(t, s.RareJobs, 1)
	require.Equal(t, "Station Technician", s.RareJobs[0].Title)
	require.Len(t, s.RecentRoles, 4)
	require.Len(t, s.Growth, 1)
	require.Equal(t, 4, s.Growth[0].NewJobs)
}

func TestGenerateSurvivesMetricStoreFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{records: []jobs.Record{record(1, nil)}}
	metrics := &fakeMetrics{err: errors.New("metrics table missing")}

	g := NewGenerator(store, metrics, fixedClock{now: time.Now()}, nil)
	s, err := g.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, s.TotalActive)
	require.Empty(t, s.Growth)
}

func TestGenerateEmptyDataset(t *testing.T) {
	t.Parallel()

	g := NewGenerator(&fakeStore{}, nil, fixedClock{now: time.Now()}, nil)
	s, err := g.Generate(context.Background())
	require.NoError(t, err)
	require.Zero(t, s.TotalActive)
	require.Zero(t, s.RemotePercent)
	require.Empty(t, s.TopSkills)
}
