// Package tavily implements a scrape unit on top of the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jobintel/job-intel/internal/fingerprint"
	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/parse"
)

const (
	// Source is the unit name recorded on every produced record.
	Source = "tavily"

	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 20
	requestTimeout    = 30 * time.Second
)

// Queries used when the config does not override them.
var defaultQueries = []string{
	"software engineer job opening",
	"backend developer position hiring",
	"site reliability engineer vacancy",
	"unusual remote jobs hiring now",
}

// Domains whose results are aggregator noise rather than postings.
var blockedDomains = map[string]struct{}{
	"www.glassdoor.com": {},
	"www.reddit.com":    {},
	"www.quora.com":     {},
	"medium.com":        {},
	"www.youtube.com":   {},
}

// A result URL must look like a posting, not a listing page or blog.
var jobPathMarkers = []string{
	"job", "jobs", "career", "careers", "position", "opening", "vacancy", "apply",
}

// Config controls one Tavily unit.
type Config struct {
	APIKey     string
	BaseURL    string
	Queries    []string
	MaxResults int
	// RateLimitRPM caps search requests per minute; zero disables the limiter.
	RateLimitRPM int
	Enabled      bool
}

// Unit is a jobs.Scraper that turns web-search results into job records.
type Unit struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	clock   jobs.Clock
	logger  *zap.Logger
}

// New builds a Tavily unit. The http.Client may be nil.
func New(cfg Config, client *http.Client, clock jobs.Clock, logger *zap.Logger) *Unit {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = defaultQueries
	}
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1)
	}
	return &Unit{cfg: cfg, client: client, limiter: limiter, clock: clock, logger: logger}
}

// SourceName implements jobs.Scraper.
func (u *Unit) SourceName() string { return Source }

// ShouldRun implements jobs.Scraper: the unit needs both an API key and the
// enabled flag.
func (u *Unit) ShouldRun() bool {
	return u.cfg.Enabled && u.cfg.APIKey != ""
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Fetch runs every configured query and returns the deduplicated records.
// A query that fails is logged and skipped; Fetch errors only when all
// queries fail.
func (u *Unit) Fetch(ctx context.Context) ([]jobs.Record, error) {
	seen := make(map[string]struct{})
	var records []jobs.Record
	failures := 0

	for _, query := range u.cfg.Queries {
		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				return records, fmt.Errorf("rate limit wait: %w", err)
			}
		}
		results, err := u.search(ctx, query)
		if err != nil {
			failures++
			u.logger.Warn("tavily query failed",
				zap.String("query", query), zap.Error(err))
			continue
		}
		for _, res := range results {
			rec, ok := u.toRecord(res)
			if !ok {
				continue
			}
			if _, dup := seen[rec.ExternalID]; dup {
				continue
			}
			seen[rec.ExternalID] = struct{}{}
			records = append(records, rec)
		}
	}

	if failures == len(u.cfg.Queries) && failures > 0 {
		return nil, fmt.Errorf("all %d tavily queries failed", failures)
	}
	return records, nil
}

func (u *Unit) search(ctx context.Context, query string) ([]searchResult, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:     u.cfg.APIKey,
		Query:      query,
		MaxResults: u.cfg.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		u.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tavily search: unexpected status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Results, nil
}

// toRecord filters one search result and normalizes it into a Record.
func (u *Unit) toRecord(res searchResult) (jobs.Record, bool) {
	if res.URL == "" || res.Title == "" {
		return jobs.Record{}, false
	}
	parsedURL, err := url.Parse(res.URL)
	if err != nil || parsedURL.Host == "" {
		return jobs.Record{}, false
	}
	if _, blocked := blockedDomains[strings.ToLower(parsedURL.Host)]; blocked {
		return jobs.Record{}, false
	}
	if !looksLikePosting(parsedURL) {
		return jobs.Record{}, false
	}

	title, company := parse.TitleCompany(res.Title)
	salaryMin, salaryMax, salaryText := parse.SalaryRange(res.Content)
	haystack := res.Title + " " + res.Content

	tags := map[string][]string{}
	if skills := parse.Skills(haystack); len(skills) > 0 {
		tags["skills"] = skills
	}
	if innovations := parse.Innovations(haystack); len(innovations) > 0 {
		tags["innovations"] = innovations
	}
	if rare := parse.RareTags(haystack); len(rare) > 0 {
		tags["rare"] = rare
	}

	rec := jobs.Record{
		Source:     Source,
		ExternalID: fingerprint.ExternalID(res.URL, res.Title),
		Title:      title,
		Company:    company,
		SalaryMin:  salaryMin,
		SalaryMax:  salaryMax,
		SalaryText: salaryText,
		Category:   categorize(tags),
		Tags:       tags,
		URL:        res.URL,
		FetchedAt:  u.clock.Now(),
		IsRemote:   isRemote(haystack),
	}
	return rec, true
}

func looksLikePosting(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	host := strings.ToLower(u.Host)
	for _, marker := range jobPathMarkers {
		if strings.Contains(path, marker) || strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

func isRemote(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "remote") ||
		strings.Contains(lower, "work from home") ||
		strings.Contains(lower, "work from anywhere")
}

func categorize(tags map[string][]string) string {
	switch {
	case len(tags["rare"]) > 0:
		return "rare"
	case len(tags["innovations"]) > 0:
		return "innovation"
	case len(tags["skills"]) > 0:
		return "engineering"
	default:
		return "general"
	}
}
