// Package freshness drives the record lifecycle: probing stale postings,
// soft-deleting dead ones, and archiving long-dead rows.
package freshness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/progress"
	"github.com/jobintel/job-intel/internal/resource"
	"github.com/jobintel/job-intel/internal/telemetry"
)

// Policy sets the retention windows and batch bound for one cleanup cycle.
type Policy struct {
	// ExpiredDays is the age after which an active record gets probed.
	ExpiredDays int
	// ArchiveDays is the age a soft-deleted record must reach before it is
	// moved to the archive table.
	ArchiveDays int
	// BatchSize bounds how many records each pass touches per cycle.
	BatchSize int
	// ProbeTimeout bounds each liveness probe.
	ProbeTimeout time.Duration
}

// DefaultPolicy mirrors the production retention windows.
func DefaultPolicy() Policy {
	return Policy{
		ExpiredDays:  30,
		ArchiveDays:  90,
		BatchSize:    100,
		ProbeTimeout: 10 * time.Second,
	}
}

// Gate answers whether cleanup work may start right now. The resource
// monitor satisfies it.
type Gate interface {
	CanRun(ctx context.Context, category resource.Category) bool
	Current(ctx context.Context) resource.Status
}

// Manager runs cleanup cycles against the record store.
type Manager struct {
	store   jobs.Store
	gate    Gate
	client  *http.Client
	clock   jobs.Clock
	emitter progress.Emitter
	logger  *zap.Logger
	policy  Policy
}

// NewManager builds a Manager. The http.Client may be nil.
func NewManager(store jobs.Store, gate Gate, client *http.Client, clock jobs.Clock, policy Policy, logger *zap.Logger) *Manager {
	if policy.ExpiredDays <= 0 {
		policy.ExpiredDays = DefaultPolicy().ExpiredDays
	}
	if policy.ArchiveDays <= 0 {
		policy.ArchiveDays = DefaultPolicy().ArchiveDays
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = DefaultPolicy().BatchSize
	}
	if policy.ProbeTimeout <= 0 {
		policy.ProbeTimeout = DefaultPolicy().ProbeTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: policy.ProbeTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		gate:    gate,
		client:  client,
		clock:   clock,
		emitter: progress.NopEmitter{},
		logger:  logger,
		policy:  policy,
	}
}

// SetEmitter wires a progress emitter; nil restores the no-op default.
func (m *Manager) SetEmitter(e progress.Emitter) {
	if e == nil {
		m.emitter = progress.NopEmitter{}
		return
	}
	m.emitter = e
}

// RunCleanupCycle performs one bounded validation pass and one bounded archive
// pass. Cleanup is the first load to shed: the cycle returns zero stats
// without touching storage when the gate denies it outright, and also at
// heavy load, where routine probing would add network and write traffic the
// system cannot spare. Probe failures never abort the batch; storage write
// failures do.
func (m *Manager) RunCleanupCycle(ctx context.Context) (jobs.CleanupStats, error) {
	if m.gate != nil {
		if !m.gate.CanRun(ctx, resource.CategoryCleanup) {
			m.logger.Warn("cleanup cycle skipped: resources constrained")
			return jobs.CleanupStats{}, nil
		}
		if level := m.gate.Current(ctx).Level; level >= resource.LevelHeavy {
			m.logger.Warn("cleanup cycle skipped: system under heavy load",
				zap.Stringer("level", level))
			return jobs.CleanupStats{}, nil
		}
	}
	return m.runCycle(ctx)
}

// ForceCleanupCycle bypasses the admission gate. Used when disk pressure is
// the very reason cleanup must run.
func (m *Manager) ForceCleanupCycle(ctx context.Context) (jobs.CleanupStats, error) {
	return m.runCycle(ctx)
}

func (m *Manager) runCycle(ctx context.Context) (jobs.CleanupStats, error) {
	stats := jobs.CleanupStats{}
	runID := uuid.New()
	started := m.clock.Now()
	m.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    started,
		Stage: progress.StageCleanupStart,
	})

	if err := m.validatePass(ctx, &stats); err != nil {
		return stats, err
	}
	if err := m.archivePass(ctx, &stats); err != nil {
		return stats, err
	}

	finished := m.clock.Now()
	m.emitter.Emit(progress.Event{
		RunID:   progress.UUIDToBytes(runID),
		TS:      finished,
		Stage:   progress.StageCleanupDone,
		Records: int64(stats.Validated),
		Dur:     finished.Sub(started),
	})
	m.logger.Info("cleanup cycle finished",
		zap.Int("validated", stats.Validated),
		zap.Int("soft_deleted", stats.SoftDeleted),
		zap.Int("archived", stats.Archived))
	return stats, nil
}

// validatePass probes stale active records and soft-deletes dead ones.
func (m *Manager) validatePass(ctx context.Context, stats *jobs.CleanupStats) error {
	now := m.clock.Now()
	cutoff := now.AddDate(0, 0, -m.policy.ExpiredDays)
	stale, err := m.store.ListStale(ctx, cutoff, m.policy.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale records: %w", err)
	}

	for _, rec := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		verdict := m.probe(ctx, rec.URL)
		switch verdict {
		case probeDead:
			if err := m.store.SoftDelete(ctx, rec.ID, now); err != nil {
				return fmt.Errorf("soft delete record %d: %w", rec.ID, err)
			}
			if err := m.markValidated(ctx, rec.ID, now, false); err != nil {
				return err
			}
			stats.SoftDeleted++
			telemetry.ObserveCleanup("soft_deleted")
			m.logger.Info("record soft-deleted",
				zap.Int64("id", rec.ID), zap.String("url", rec.URL))
		case probeAlive:
			if err := m.markValidated(ctx, rec.ID, now, true); err != nil {
				return err
			}
		case probeUnknown:
			// A transport error says nothing about the posting. Advance the
			// probe timestamp so one flaky host cannot pin the batch.
			if err := m.store.TouchValidated(ctx, rec.ID, now); err != nil {
				return fmt.Errorf("touch record %d: %w", rec.ID, err)
			}
		}
		stats.Validated++
		telemetry.ObserveCleanup("validated")
	}
	return nil
}

// archivePass moves long-dead records to the archive table.
func (m *Manager) archivePass(ctx context.Context, stats *jobs.CleanupStats) error {
	now := m.clock.Now()
	cutoff := now.AddDate(0, 0, -m.policy.ArchiveDays)
	archivable, err := m.store.ListArchivable(ctx, cutoff, m.policy.BatchSize)
	if err != nil {
		return fmt.Errorf("list archivable records: %w", err)
	}

	for _, rec := range archivable {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.store.Archive(ctx, rec.ID, now); err != nil {
			return fmt.Errorf("archive record %d: %w", rec.ID, err)
		}
		stats.Archived++
		telemetry.ObserveCleanup("archived")
	}
	return nil
}

func (m *Manager) markValidated(ctx context.Context, id int64, at time.Time, valid bool) error {
	if err := m.store.MarkValidated(ctx, id, at, valid); err != nil {
		return fmt.Errorf("mark record %d validated: %w", id, err)
	}
	return nil
}

type probeVerdict int

const (
	probeAlive probeVerdict = iota
	probeDead
	probeUnknown
)

// Statuses that prove the posting is gone. Anything else that produced a
// response, including 5xx and rate limits, leaves the record alive.
func verdictForStatus(status int) probeVerdict {
	switch status {
	case http.StatusNotFound, http.StatusGone, http.StatusForbidden:
		return probeDead
	default:
		return probeAlive
	}
}

// probe checks whether a posting URL still resolves. HEAD first, falling back
// to GET for hosts that reject HEAD.
func (m *Manager) probe(ctx context.Context, rawURL string) probeVerdict {
	if rawURL == "" {
		return probeDead
	}
	ctx, cancel := context.WithTimeout(ctx, m.policy.ProbeTimeout)
	defer cancel()

	status, err := m.request(ctx, http.MethodHead, rawURL)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = m.request(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		m.logger.Debug("liveness probe inconclusive",
			zap.String("url", rawURL), zap.Error(err))
		return probeUnknown
	}
	return verdictForStatus(status)
}

func (m *Manager) request(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, nil
}
