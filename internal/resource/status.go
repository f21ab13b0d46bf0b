// Package resource implements resource sampling and admission control.
//
// One Monitor instance owns the authoritative view of system load per
// process. Background task categories consult it before running; the
// periodic sampling loop notifies observers whenever the system is under
// pressure.
package resource

import (
	"encoding/json"
	"time"
)

// ThrottleLevel is the discrete resource-pressure tier derived from CPU and
// disk metrics. Levels are ordered by severity.
type ThrottleLevel int

const (
	LevelNormal ThrottleLevel = iota
	LevelLight
	LevelHeavy
	LevelPause
)

// String returns the lowercase level name.
func (l ThrottleLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelLight:
		return "light"
	case LevelHeavy:
		return "heavy"
	case LevelPause:
		return "pause"
	default:
		return "unknown"
	}
}

// Category identifies a class of work for admission decisions.
type Category string

const (
	CategoryCritical Category = "critical"
	CategoryAPI      Category = "api"
	CategoryScraping Category = "scraping"
	CategoryCleanup  Category = "cleanup"
)

// Status is an ephemeral snapshot of system load. Consumers always receive a
// copy; the Monitor owns the cached value.
type Status struct {
	CPUPercent      float64       `json:"cpu_percent"`
	MemoryPercent   float64       `json:"memory_percent"`
	DiskFreePercent float64       `json:"disk_free_percent"`
	DiskFreeGB      float64       `json:"disk_free_gb"`
	Level           ThrottleLevel `json:"-"`
	CheckedAt       time.Time     `json:"-"`
}

// IsHealthy reports whether the system is at the NORMAL level.
func (s Status) IsHealthy() bool {
	return s.Level == LevelNormal
}

// MarshalJSON serializes the flat field set consumed by the API surface:
// throttle_level as an ordinal, checked_at as an ISO timestamp.
func (s Status) MarshalJSON() ([]byte, error) {
	type flat struct {
		CPUPercent      float64 `json:"cpu_percent"`
		MemoryPercent   float64 `json:"memory_percent"`
		DiskFreePercent float64 `json:"disk_free_percent"`
		DiskFreeGB      float64 `json:"disk_free_gb"`
		IsHealthy       bool    `json:"is_healthy"`
		ThrottleLevel   int     `json:"throttle_level"`
		CheckedAt       string  `json:"checked_at"`
	}
	return json.Marshal(flat{
		CPUPercent:      s.CPUPercent,
		MemoryPercent:   s.MemoryPercent,
		DiskFreePercent: s.DiskFreePercent,
		DiskFreeGB:      s.DiskFreeGB,
		IsHealthy:       s.IsHealthy(),
		ThrottleLevel:   int(s.Level),
		CheckedAt:       s.CheckedAt.UTC().Format(time.RFC3339),
	})
}
