// Package scraper coordinates source units: concurrent fan-out, admission
// gating, and per-unit failure isolation.
package scraper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/progress"
	"github.com/jobintel/job-intel/internal/resource"
	"github.com/jobintel/job-intel/internal/telemetry"
)

// Gate answers whether work of a given category may start right now.
type Gate interface {
	CanRun(ctx context.Context, category resource.Category) bool
}

// Applier persists one unit's records and reports how many rows actually
// changed, so the run report and events carry real new-row counts.
type Applier func(ctx context.Context, source string, records []jobs.Record) (int, error)

// UnitResult records how one source unit fared inside a run.
type UnitResult struct {
	Source  string        `json:"source"`
	Outcome string        `json:"outcome"` // ok, skipped, failed
	Records int           `json:"records"`
	Applied int           `json:"applied"`
	Dur     time.Duration `json:"duration"`
	Err     string        `json:"error,omitempty"`

	records []jobs.Record
}

// Report summarizes one RunAll invocation. Skipped units are not failures;
// callers can tell the two apart per unit.
type Report struct {
	RunID    uuid.UUID    `json:"run_id"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Units    []UnitResult `json:"units"`
}

// Failed returns the number of units that errored.
func (r Report) Failed() int {
	n := 0
	for _, u := range r.Units {
		if u.Outcome == "failed" {
			n++
		}
	}
	return n
}

// Skipped returns the number of units that declined to run or were throttled.
func (r Report) Skipped() int {
	n := 0
	for _, u := range r.Units {
		if u.Outcome == "skipped" {
			n++
		}
	}
	return n
}

// Applied sums the rows the applier reported as changed across all units.
func (r Report) Applied() int {
	n := 0
	for _, u := range r.Units {
		n += u.Applied
	}
	return n
}

const defaultMaxConcurrent = 4

// Orchestrator fans a scrape run out over the registered units.
type Orchestrator struct {
	gate    Gate
	clock   jobs.Clock
	emitter progress.Emitter
	applier Applier
	logger  *zap.Logger

	maxConcurrent int64

	mu    sync.Mutex
	units []jobs.Scraper
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxConcurrent caps how many units fetch at once.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = int64(n)
		}
	}
}

// WithEmitter wires a progress emitter for run events.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithApplier wires the persistence step that runs right after each unit's
// fetch, while the unit's outcome is still being decided. Without an applier
// the run only reports fetched counts.
func WithApplier(a Applier) Option {
	return func(o *Orchestrator) {
		o.applier = a
	}
}

// NewOrchestrator builds an empty orchestrator; register units with Register.
func NewOrchestrator(gate Gate, clock jobs.Clock, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		gate:          gate,
		clock:         clock,
		emitter:       progress.NopEmitter{},
		logger:        logger,
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds a source unit. Duplicate source names are rejected.
func (o *Orchestrator) Register(unit jobs.Scraper) error {
	if unit == nil {
		return fmt.Errorf("unit is nil")
	}
	name := unit.SourceName()
	if name == "" {
		return fmt.Errorf("unit has no source name")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.units {
		if existing.SourceName() == name {
			return fmt.Errorf("unit %q already registered", name)
		}
	}
	o.units = append(o.units, unit)
	return nil
}

// Sources lists the registered unit names.
func (o *Orchestrator) Sources() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.units))
	for _, u := range o.units {
		names = append(names, u.SourceName())
	}
	sort.Strings(names)
	return names
}

// RunAll executes every registered unit concurrently and returns the combined
// records plus a per-unit report. A unit that panics or errors is reported as
// failed without affecting its siblings. Admission is checked per unit right
// before it starts, so a run that begins under pressure sheds remaining units
// rather than all-or-nothing.
func (o *Orchestrator) RunAll(ctx context.Context) ([]jobs.Record, Report) {
	o.mu.Lock()
	units := append([]jobs.Scraper(nil), o.units...)
	o.mu.Unlock()

	runID := uuid.New()
	report := Report{RunID: runID, Started: o.clock.Now()}
	o.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    report.Started,
		Stage: progress.StageRunStart,
	})
	o.logger.Info("scrape run started",
		zap.String("run_id", runID.String()), zap.Int("units", len(units)))

	sem := semaphore.NewWeighted(o.maxConcurrent)
	results := make([]UnitResult, len(units))
	var all []jobs.Record
	var allMu sync.Mutex
	var wg sync.WaitGroup

	for i, unit := range units {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = UnitResult{Source: unit.SourceName(), Outcome: "skipped", Err: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, unit jobs.Scraper) {
			defer wg.Done()
			defer sem.Release(1)
			result := o.runUnit(ctx, runID, unit)
			results[i] = result
			if result.Outcome == "ok" && result.records != nil {
				allMu.Lock()
				all = append(all, result.records...)
				allMu.Unlock()
			}
		}(i, unit)
	}
	wg.Wait()

	for i := range results {
		results[i].records = nil
	}
	report.Units = results
	report.Finished = o.clock.Now()

	stage := progress.StageRunDone
	if report.Failed() == len(units) && len(units) > 0 {
		stage = progress.StageRunError
	}
	o.emitter.Emit(progress.Event{
		RunID:   progress.UUIDToBytes(runID),
		TS:      report.Finished,
		Stage:   stage,
		Records: int64(len(all)),
		Applied: int64(report.Applied()),
		Dur:     report.Finished.Sub(report.Started),
	})
	o.logger.Info("scrape run finished",
		zap.String("run_id", runID.String()),
		zap.Int("records", len(all)),
		zap.Int("applied", report.Applied()),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", report.Skipped()))
	return all, report
}

func (o *Orchestrator) runUnit(ctx context.Context, runID uuid.UUID, unit jobs.Scraper) (result UnitResult) {
	source := unit.SourceName()
	result.Source = source
	started := o.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = "failed"
			result.Err = fmt.Sprintf("panic: %v", r)
			result.Dur = o.clock.Now().Sub(started)
			telemetry.ObserveScrape(source, "failed", 0, result.Dur)
			o.emitUnit(runID, progress.StageSourceError, result)
			o.logger.Error("scrape unit panicked",
				zap.String("source", source), zap.Any("panic", r))
		}
	}()

	if !unit.ShouldRun() {
		result.Outcome = "skipped"
		result.Err = "unit declined to run"
		telemetry.ObserveScrape(source, "skipped", 0, 0)
		o.emitUnit(runID, progress.StageSourceSkipped, result)
		return result
	}
	if o.gate != nil && !o.gate.CanRun(ctx, resource.CategoryScraping) {
		result.Outcome = "skipped"
		result.Err = "throttled by resource gate"
		telemetry.ObserveScrape(source, "throttled", 0, 0)
		o.emitUnit(runID, progress.StageSourceSkipped, result)
		o.logger.Warn("scrape unit throttled", zap.String("source", source))
		return result
	}

	o.emitter.Emit(progress.Event{
		RunID:  progress.UUIDToBytes(runID),
		TS:     started,
		Stage:  progress.StageSourceStart,
		Source: source,
	})

	records, err := unit.Fetch(ctx)
	result.Dur = o.clock.Now().Sub(started)
	if err != nil {
		result.Outcome = "failed"
		result.Err = err.Error()
		telemetry.ObserveScrape(source, "failed", 0, result.Dur)
		o.emitUnit(runID, progress.StageSourceError, result)
		o.logger.Error("scrape unit failed",
			zap.String("source", source), zap.Error(err))
		return result
	}

	result.Records = len(records)
	if o.applier != nil && len(records) > 0 {
		applied, err := o.applier(ctx, source, records)
		result.Dur = o.clock.Now().Sub(started)
		if err != nil {
			result.Outcome = "failed"
			result.Err = err.Error()
			telemetry.ObserveScrape(source, "failed", 0, result.Dur)
			o.emitUnit(runID, progress.StageSourceError, result)
			o.logger.Error("scrape unit persist failed",
				zap.String("source", source), zap.Error(err))
			return result
		}
		result.Applied = applied
	}

	result.Outcome = "ok"
	result.records = records
	telemetry.ObserveScrape(source, "ok", len(records), result.Dur)
	o.emitUnit(runID, progress.StageSourceDone, result)
	o.logger.Info("scrape unit finished",
		zap.String("source", source),
		zap.Int("records", len(records)),
		zap.Duration("dur", result.Dur))
	return result
}

func (o *Orchestrator) emitUnit(runID uuid.UUID, stage progress.Stage, result UnitResult) {
	o.emitter.Emit(progress.Event{
		RunID:   progress.UUIDToBytes(runID),
		TS:      o.clock.Now(),
		Stage:   stage,
		Source:  result.Source,
		Records: int64(result.Records),
		Applied: int64(result.Applied),
		Dur:     result.Dur,
		Note:    result.Err,
	})
}
