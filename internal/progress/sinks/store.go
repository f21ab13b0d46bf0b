package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/progress"
)

// MetricSink persists one run-metric row per completed source so the growth
// summary can be computed later from the metrics table.
type MetricSink struct {
	metrics jobs.MetricStore
	logger  *zap.Logger
}

// NewMetricSink constructs a MetricSink for the provided store.
func NewMetricSink(metrics jobs.MetricStore, logger *zap.Logger) *MetricSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricSink{metrics: metrics, logger: logger}
}

// Consume writes a metrics row for every SOURCE_DONE event in the batch.
// Other stages are ignored; a write failure aborts the batch so the hub can
// log it.
func (s *MetricSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.metrics == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageSourceDone {
			continue
		}
		metric := jobs.RunMetric{
			RunAt:           evt.TS,
			Source:          evt.Source,
			TotalJobs:       int(evt.Records),
			NewJobs:         int(evt.Applied),
			DurationSeconds: evt.Dur.Seconds(),
		}
		if err := s.metrics.RecordRun(ctx, metric); err != nil {
			return fmt.Errorf("record run metric for %s: %w", evt.Source, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *MetricSink) Close(context.Context) error {
	return nil
}
