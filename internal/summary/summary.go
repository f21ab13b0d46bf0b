// Package summary aggregates active records into a market overview.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/jobs"
)

const (
	pageSize       = 200
	maxRecords     = 5000
	recentRoles    = 50
	topTagCount    = 10
	growthRunCount = 30
)

// TagCount pairs a tag label with how many active records carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Role is one recent posting in display form.
type Role struct {
	Title    string     `json:"title"`
	Company  string     `json:"company,omitempty"`
	URL      string     `json:"url"`
	Remote   bool       `json:"remote"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GrowthPoint is one scrape run's contribution to the dataset.
type GrowthPoint struct {
	RunAt   time.Time `json:"run_at"`
	Source  string    `json:"source"`
	Total   int       `json:"total"`
	NewJobs int       `json:"new_jobs"`
}

// Summary is the aggregate view served by the API.
type Summary struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	TotalActive    int           `json:"total_active"`
	RemotePercent  float64       `json:"remote_percent"`
	Locations      []TagCount    `json:"locations"`
	TopSkills      []TagCount    `json:"top_skills"`
	TopInnovations []TagCount    `json:"top_innovations"`
	RareJobs       []Role        `json:"rare_jobs"`
	RecentRoles    []Role        `json:"recent_roles"`
	Growth         []GrowthPoint `json:"growth"`
}

// Generator builds summaries from the record and metric stores.
type Generator struct {
	store   jobs.Store
	metrics jobs.MetricStore
	clock   jobs.Clock
	logger  *zap.Logger
}

// NewGenerator wires a Generator. The metric store may be nil; growth data is
// then omitted.
func NewGenerator(store jobs.Store, metrics jobs.MetricStore, clock jobs.Clock, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: store, metrics: metrics, clock: clock, logger: logger}
}

// Generate walks the active records page by page and folds them into a
// Summary. The walk is bounded so a runaway table cannot pin the API.
func (g *Generator) Generate(ctx context.Context) (Summary, error) {
	s := Summary{GeneratedAt: g.clock.Now()}

	remote := 0
	locations := map[string]int{}
	skills := map[string]int{}
	innovations := map[string]int{}
	var rare []Role
	var recent []Role

	for offset := 0; offset < maxRecords; offset += pageSize {
		page, err := g.store.List(ctx, jobs.ListFilter{Offset: offset, Limit: pageSize})
		if err != nil {
			return Summary{}, fmt.Errorf("list active records: %w", err)
		}
		for _, rec := range page {
			s.TotalActive++
			if rec.IsRemote {
				remote++
			}
			if loc := normalizeLocation(rec.Location); loc != "" {
				locations[loc]++
			}
			for _, tag := range rec.Tags["skills"] {
				skills[tag]++
			}
			for _, tag := range rec.Tags["innovations"] {
				innovations[tag]++
			}
			if len(rec.Tags["rare"]) > 0 {
				rare = append(rare, toRole(rec))
			}
			if len(recent) < recentRoles {
				recent = append(recent, toRole(rec))
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	if s.TotalActive > 0 {
		s.RemotePercent = 100 * float64(remote) / float64(s.TotalActive)
	}
	s.Locations = topTags(locations, topTagCount)
	s.TopSkills = topTags(skills, topTagCount)
	s.TopInnovations = topTags(innovations, topTagCount)
	s.RareJobs = rare
	s.RecentRoles = recent

	if g.metrics != nil {
		runs, err := g.metrics.ListRuns(ctx, growthRunCount)
		if err != nil {
			// Growth is a garnish; serve the summary without it.
			g.logger.Warn("growth metrics unavailable", zap.Error(err))
		} else {
			for _, run := range runs {
				s.Growth = append(s.Growth, GrowthPoint{
					RunAt:   run.RunAt,
					Source:  run.Source,
					Total:   run.TotalJobs,
					NewJobs: run.NewJobs,
				})
			}
		}
	}
	return s, nil
}

func toRole(rec jobs.Record) Role {
	return Role{
		Title:     rec.Title,
		Company:   rec.Company,
		URL:       rec.URL,
		Remote:    rec.IsRemote,
		FetchedAt: rec.FetchedAt,
	}
}

func normalizeLocation(loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return ""
	}
	// "Berlin, Germany" buckets under its broadest component.
	parts := strings.Split(loc, ",")
	return strings.TrimSpace(parts[len(parts)-1])
}

func topTags(counts map[string]int, limit int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		out = append(out, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
