// Package task provides the work-item queues, the runner that executes them,
// and the cron scheduler that feeds them.
package task

import (
	"context"
	"errors"
	"time"
)

// Task names understood by the runner.
const (
	NameScrapeSource   = "scrape-source"
	NameRunCleanup     = "run-cleanup"
	NameCheckResources = "check-resources"
)

// Queue names in descending priority.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ErrThrottled signals that a handler declined to run because resources are
// constrained; the runner requeues the item instead of counting a failure.
var ErrThrottled = errors.New("task throttled by resource pressure")

// Item is one unit of queued work.
type Item struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Queue      string            `json:"queue"`
	Args       map[string]string `json:"args,omitempty"`
	Attempts   int               `json:"attempts"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Broker moves items between producers and the runner. Dequeue blocks until
// an item is available or the context finishes, always draining higher
// priority queues first. PauseLow parks the low queue without dropping items.
type Broker interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
	Depths(ctx context.Context) (map[string]int, error)
	PauseLow()
	ResumeLow()
	Close() error
}

func validQueue(name string) bool {
	switch name {
	case QueueCritical, QueueDefault, QueueLow:
		return true
	default:
		return false
	}
}
