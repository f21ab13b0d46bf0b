package task

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/freshness"
	"github.com/jobintel/job-intel/internal/resource"
	"github.com/jobintel/job-intel/internal/scraper"
)

// emergencyDiskFreePercent matches the pause tier: below this the dataset is
// at risk and cleanup jumps the queue.
const emergencyDiskFreePercent = 10

// Handlers bundles the domain services the standard tasks need. The
// orchestrator owns persistence through its applier, so the scrape task only
// coordinates the run.
type Handlers struct {
	Monitor      *resource.Monitor
	Broker       Broker
	Orchestrator *scraper.Orchestrator
	Freshness    *freshness.Manager
	Logger       *zap.Logger
}

// RegisterAll binds the standard task set onto the runner.
func (h Handlers) RegisterAll(r *Runner) error {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := r.Register(NameScrapeSource, h.scrapeHandler(logger)); err != nil {
		return err
	}
	if err := r.Register(NameRunCleanup, h.cleanupHandler()); err != nil {
		return err
	}
	return r.Register(NameCheckResources, h.resourceHandler(logger))
}

// scrapeHandler runs a full scrape fan-out; each unit persists through the
// orchestrator's applier before its outcome is settled.
func (h Handlers) scrapeHandler(logger *zap.Logger) Handler {
	return func(ctx context.Context, item Item) error {
		if h.Monitor != nil && !h.Monitor.CanRun(ctx, resource.CategoryScraping) {
			return ErrThrottled
		}
		records, report := h.Orchestrator.RunAll(ctx)
		logger.Info("scrape task finished",
			zap.String("task_id", item.ID),
			zap.String("run_id", report.RunID.String()),
			zap.Int("records", len(records)),
			zap.Int("applied", report.Applied()),
			zap.Int("failed", report.Failed()),
			zap.Int("skipped", report.Skipped()))
		if report.Failed() > 0 && report.Failed() == len(report.Units) {
			return fmt.Errorf("all %d scrape units failed", report.Failed())
		}
		return nil
	}
}

// cleanupHandler runs one retention cycle. The manager applies its own
// admission gate; a skipped cycle is a success, not a retry. Items promoted
// to the critical queue bypass the gate, since disk pressure is the reason
// they exist.
func (h Handlers) cleanupHandler() Handler {
	return func(ctx context.Context, item Item) error {
		if item.Queue == QueueCritical {
			_, err := h.Freshness.ForceCleanupCycle(ctx)
			return err
		}
		_, err := h.Freshness.RunCleanupCycle(ctx)
		return err
	}
}

// resourceHandler refreshes the load snapshot and reacts to it: heavy
// pressure parks the low-priority queue, and a nearly full disk promotes an
// emergency cleanup to the critical queue.
func (h Handlers) resourceHandler(logger *zap.Logger) Handler {
	return func(ctx context.Context, _ Item) error {
		status := h.Monitor.Refresh(ctx)

		if h.Broker != nil {
			if status.Level >= resource.LevelHeavy {
				h.Broker.PauseLow()
				logger.Warn("low-priority queue paused",
					zap.String("level", status.Level.String()))
			} else {
				h.Broker.ResumeLow()
			}
		}

		if status.DiskFreePercent < emergencyDiskFreePercent && h.Broker != nil {
			logger.Warn("disk critically low, promoting cleanup",
				zap.Float64("disk_free_percent", status.DiskFreePercent))
			if err := h.Broker.Enqueue(ctx, Item{
				ID:    "emergency-cleanup",
				Name:  NameRunCleanup,
				Queue: QueueCritical,
			}); err != nil {
				return fmt.Errorf("enqueue emergency cleanup: %w", err)
			}
		}
		return nil
	}
}
