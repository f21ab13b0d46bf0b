package resource

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/telemetry"
)

// Hard throttle boundaries. The PAUSE and LIGHT tiers are fixed; the HEAVY
// tier sits between them and is configurable.
const (
	pauseDiskFreePercent = 10.0
	pauseCPUPercent      = 95.0
	lightDiskFreePercent = 20.0
	lightCPUPercent      = 75.0

	// DefaultMinFreeDiskPercent and DefaultMaxCPUPercent bound the HEAVY tier.
	DefaultMinFreeDiskPercent = 15.0
	DefaultMaxCPUPercent      = 85.0
)

// SamplerConfig controls threshold tuning and which volume is measured.
type SamplerConfig struct {
	// DataPath is the mount point of the data volume (default "/").
	DataPath string
	// MinFreeDiskPercent is the HEAVY disk threshold (default 15).
	MinFreeDiskPercent float64
	// MaxCPUPercent is the HEAVY CPU threshold (default 85).
	MaxCPUPercent float64
}

// Sampler reads live system metrics and classifies load. Sampling never
// fails the caller: unreadable metrics degrade to a best-effort status.
type Sampler struct {
	cfg    SamplerConfig
	logger *zap.Logger
}

// NewSampler constructs a Sampler, filling config defaults.
func NewSampler(cfg SamplerConfig, logger *zap.Logger) *Sampler {
	if cfg.DataPath == "" {
		cfg.DataPath = "/"
	}
	if cfg.MinFreeDiskPercent <= 0 {
		cfg.MinFreeDiskPercent = DefaultMinFreeDiskPercent
	}
	if cfg.MaxCPUPercent <= 0 {
		cfg.MaxCPUPercent = DefaultMaxCPUPercent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{cfg: cfg, logger: logger}
}

// Sample takes one instantaneous reading, updates the process gauges, and
// returns the classified status. Metric read errors are logged and the
// affected field left at its zero value rather than propagated.
func (s *Sampler) Sample(ctx context.Context) Status {
	status := Status{CheckedAt: time.Now().UTC()}

	// Interval 0 reads the delta since the previous call, non-blocking.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.logger.Warn("cpu sample failed", zap.Error(err))
	} else if len(percents) > 0 {
		status.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.logger.Warn("memory sample failed", zap.Error(err))
	} else {
		status.MemoryPercent = vm.UsedPercent
	}

	if usage, err := disk.UsageWithContext(ctx, s.cfg.DataPath); err != nil {
		s.logger.Warn("disk sample failed", zap.String("path", s.cfg.DataPath), zap.Error(err))
		// Treat an unreadable volume as fully free so a broken stat call
		// cannot wedge the whole pipeline at PAUSE.
		status.DiskFreePercent = 100
	} else {
		status.DiskFreePercent = 100 - usage.UsedPercent
		status.DiskFreeGB = float64(usage.Free) / (1 << 30)
	}

	status.Level = Classify(status.CPUPercent, status.DiskFreePercent, s.cfg)

	telemetry.ObserveResourceSample(status.CPUPercent, status.MemoryPercent, status.DiskFreePercent)
	if status.Level > LevelNormal {
		telemetry.ObserveThrottleEvent()
	}

	return status
}

// Classify derives the throttle level from CPU and free-disk percentages.
// Tiers are evaluated most severe first; disk and CPU conditions are OR'd
// within each tier.
func Classify(cpuPercent, diskFreePercent float64, cfg SamplerConfig) ThrottleLevel {
	if cfg.MinFreeDiskPercent <= 0 {
		cfg.MinFreeDiskPercent = DefaultMinFreeDiskPercent
	}
	if cfg.MaxCPUPercent <= 0 {
		cfg.MaxCPUPercent = DefaultMaxCPUPercent
	}

	switch {
	case diskFreePercent < pauseDiskFreePercent || cpuPercent > pauseCPUPercent:
		return LevelPause
	case diskFreePercent < cfg.MinFreeDiskPercent || cpuPercent > cfg.MaxCPUPercent:
		return LevelHeavy
	case diskFreePercent < lightDiskFreePercent || cpuPercent > lightCPUPercent:
		return LevelLight
	default:
		return LevelNormal
	}
}
