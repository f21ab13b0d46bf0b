package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestUnit(t *testing.T, handler http.HandlerFunc, queries ...string) *Unit {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	if len(queries) == 0 {
		queries = []string{"software engineer job opening"}
	}
	cfg := Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Queries: queries,
		Enabled: true,
	}
	return New(cfg, srv.Client(), fixedClock{now: time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)}, nil)
}

func respondWith(t *testing.T, results []searchResult) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-key", req.APIKey)
		require.NotEmpty(t, req.Query)
		json.NewEncoder(w).Encode(searchResponse{Results: results})
	}
}

func TestFetchNormalizesResults(t *testing.T) {
	t.Parallel()

	unit := newTestUnit(t, respondWith(t, []searchResult{
		{
			Title:   "Backend Engineer at Acme",
			URL:     "https://acme.example/careers/backend-123",
			Content: "Remote role, Go and Kubernetes. Salary $120,000 - $150,000 per year.",
		},
	}))

	records, err := unit.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, Source, rec.Source)
	require.Len(t, rec.ExternalID, 64)
	require.Equal(t, "Backend Engineer", rec.Title)
	require.Equal(t, "Acme", rec.Company)
	require.True(t, rec.IsRemote)
	require.Equal(t, 120000, *rec.SalaryMin)
	require.Equal(t, 150000, *rec.SalaryMax)
	require.Contains(t, rec.Tags["skills"], "Go")
	require.Contains(t, rec.Tags["skills"], "Kubernetes")
}

func TestFetchFiltersNoiseAndBlockedDomains(t *testing.T) {
	t.Parallel()

	unit := newTestUnit(t, respondWith(t, []searchResult{
		{Title: "Top 10 interview tips", URL: "https://medium.com/jobs/tips"},
		{Title: "What is it like to be an engineer?", URL: "https://www.quora.com/jobs/q"},
		{Title: "Engineer blog post", URL: "https://example.com/blog/post-1"},
		{Title: "SRE at Initech", URL: "https://initech.example/jobs/sre-9"},
	}))

	records, err := unit.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "SRE", records[0].Title)
}

func TestFetchDeduplicatesAcrossQueries(t *testing.T) {
	t.Parallel()

	results := []searchResult{{
		Title: "Backend Engineer at Acme",
		URL:   "https://acme.example/jobs/1?utm_source=search",
	}, {
		Title: "Backend Engineer at Acme",
		URL:   "https://acme.example/jobs/1",
	}}
	unit := newTestUnit(t, respondWith(t, results), "query one", "query two")

	records, err := unit.Fetch(context.Background())
	require.NoError(t, err)
	// Same posting via two queries and a tracking-parameter variant collapses
	// to one record.
	require.Len(t, records, 1)
}

func TestFetchToleratesPartialQueryFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	handler := func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Results: []searchResult{
			{Title: "SRE at Initech", URL: "https://initech.example/jobs/sre-9"},
		}})
	}
	unit := newTestUnit(t, handler, "first", "second")

	records, err := unit.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestFetchErrorsWhenAllQueriesFail(t *testing.T) {
	t.Parallel()

	unit := newTestUnit(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := unit.Fetch(context.Background())
	require.Error(t, err)
}

func TestShouldRunRequiresKeyAndFlag(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Now()}
	require.False(t, New(Config{Enabled: true}, nil, clock, nil).ShouldRun())
	require.False(t, New(Config{APIKey: "k"}, nil, clock, nil).ShouldRun())
	require.True(t, New(Config{APIKey: "k", Enabled: true}, nil, clock, nil).ShouldRun())
}
