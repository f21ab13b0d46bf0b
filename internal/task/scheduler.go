package task

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedules tuned so scraping, cleanup, and resource checks never contend:
// cleanup runs in the quiet early-morning window.
const (
	SpecScrape    = "@every 6h"
	SpecCleanup   = "0 3 * * *"
	SpecResources = "@every 5m"
)

// Scheduler wraps robfig/cron and feeds the broker on a fixed cadence.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *zap.Logger
}

// NewScheduler builds an empty scheduler around the runner.
func NewScheduler(runner *Runner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger,
	}
}

// Start registers the recurring tasks and starts the cron loop. A resource
// check fires immediately so admission decisions never run on an empty
// snapshot, and one scrape is submitted up front to populate the dataset.
func (s *Scheduler) Start(ctx context.Context) error {
	entries := []struct {
		spec  string
		name  string
		queue string
	}{
		{SpecScrape, NameScrapeSource, QueueDefault},
		{SpecCleanup, NameRunCleanup, QueueLow},
		{SpecResources, NameCheckResources, QueueCritical},
	}
	for _, entry := range entries {
		entry := entry
		if _, err := s.cron.AddFunc(entry.spec, func() {
			s.submit(ctx, entry.name, entry.queue)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", entry.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("scrape", SpecScrape),
		zap.String("cleanup", SpecCleanup),
		zap.String("resources", SpecResources))

	s.submit(ctx, NameCheckResources, QueueCritical)
	s.submit(ctx, NameScrapeSource, QueueDefault)
	return nil
}

// Stop halts the cron loop; queued items remain in the broker.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) submit(ctx context.Context, name, queue string) {
	if _, err := s.runner.Submit(ctx, name, queue, nil); err != nil {
		s.logger.Error("scheduled submit failed",
			zap.String("name", name), zap.Error(err))
	}
}
