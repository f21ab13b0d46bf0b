// Package jobs defines core types shared across subsystems.
package jobs

import (
	"time"
)

// Record is the canonical job posting. Identity is the composite
// (Source, ExternalID) pair, immutable after creation; everything else is
// mutable and refreshed on each successful scrape.
type Record struct {
	ID         int64  `json:"id"`
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`

	Title    string `json:"title"`
	Company  string `json:"company,omitempty"`
	Location string `json:"location,omitempty"`

	SalaryMin  *int   `json:"salary_min,omitempty"`
	SalaryMax  *int   `json:"salary_max,omitempty"`
	SalaryText string `json:"salary_text,omitempty"`

	Category string              `json:"category,omitempty"`
	Tags     map[string][]string `json:"tags,omitempty"`
	URL      string              `json:"url,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`

	IsRemote bool `json:"is_remote"`

	IsValid         bool       `json:"is_valid"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Identity returns the composite key as a single string, mainly for logging.
func (r Record) Identity() string {
	return r.Source + "/" + r.ExternalID
}

// IsDeleted reports whether the record has been soft-deleted.
func (r Record) IsDeleted() bool {
	return r.DeletedAt != nil
}

// ArchivedRecord is the terminal, append-only copy of a Record. It keeps the
// original primary key so archived rows stay traceable to their source row.
type ArchivedRecord struct {
	Record
	ArchivedAt time.Time `json:"archived_at"`
}

// RunMetric is an immutable row recording the outcome of one scrape run.
// Rows are only ever inserted; growth queries compare consecutive rows.
type RunMetric struct {
	ID              int64     `json:"id"`
	RunAt           time.Time `json:"run_at"`
	Source          string    `json:"source"`
	TotalJobs       int       `json:"total_jobs"`
	NewJobs         int       `json:"new_jobs"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// ListFilter narrows paged record queries.
type ListFilter struct {
	Source string
	Offset int
	Limit  int
}

// CleanupStats summarizes one retention cycle.
type CleanupStats struct {
	Validated   int `json:"validated"`
	SoftDeleted int `json:"soft_deleted"`
	Archived    int `json:"archived"`
}

// Zero reports whether the cycle touched nothing.
func (s CleanupStats) Zero() bool {
	return s == CleanupStats{}
}
