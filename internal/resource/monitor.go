package resource

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Observer receives a status copy whenever a periodic re-sample lands in a
// non-NORMAL level. Observers run sequentially on the sampling goroutine; a
// slow observer delays the next sample but never blocks admission checks.
type Observer func(Status)

const defaultSampleInterval = 30 * time.Second

// Monitor is the process-wide admission controller. It owns the cached
// Status, gates task categories on the current throttle level, and runs the
// periodic sampling loop.
type Monitor struct {
	sampler  *Sampler
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	current   *Status
	observers []Observer
}

// NewMonitor constructs a Monitor around the given sampler. An interval of
// zero selects the 30s default.
func NewMonitor(sampler *Sampler, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		sampler:  sampler,
		interval: interval,
		logger:   logger,
	}
}

// Refresh samples immediately, caches the result, and returns a copy.
func (m *Monitor) Refresh(ctx context.Context) Status {
	status := m.sampler.Sample(ctx)
	m.mu.Lock()
	m.current = &status
	m.mu.Unlock()
	return status
}

// Current returns a copy of the latest cached status, sampling on demand if
// nothing has been cached yet.
func (m *Monitor) Current(ctx context.Context) Status {
	m.mu.RLock()
	cached := m.current
	m.mu.RUnlock()
	if cached != nil {
		return *cached
	}
	return m.Refresh(ctx)
}

// CanRun reports whether the given work category is admitted at the current
// throttle level. A denial is a normal skip, not an error; callers retry on
// their own cadence.
func (m *Monitor) CanRun(ctx context.Context, category Category) bool {
	if category == CategoryCritical {
		return true
	}

	level := m.Current(ctx).Level
	switch category {
	case CategoryAPI, CategoryCleanup:
		return level < LevelPause
	case CategoryScraping:
		return level <= LevelLight
	default:
		return level == LevelNormal
	}
}

// Subscribe registers an observer for under-load notifications.
func (m *Monitor) Subscribe(obs Observer) {
	if obs == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, obs)
	m.mu.Unlock()
}

// Run executes the periodic sampling loop until ctx is canceled. The stop
// signal is checked at every wake; in-flight observer callbacks finish before
// Run returns.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("resource monitor started", zap.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("resource monitor stopped")
			return
		case <-ticker.C:
			status := m.Refresh(ctx)
			if status.Level > LevelNormal {
				m.logger.Warn("system under load",
					zap.Stringer("level", status.Level),
					zap.Float64("cpu_percent", status.CPUPercent),
					zap.Float64("disk_free_percent", status.DiskFreePercent),
				)
				m.notify(status)
			}
		}
	}
}

// notify invokes observers sequentially; a panicking observer is logged and
// skipped so it cannot take down the loop or its siblings.
func (m *Monitor) notify(status Status) {
	m.mu.RLock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.logger.Error("resource observer panicked", zap.Any("panic", rec))
				}
			}()
			obs(status)
		}()
	}
}
