package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jobintel/job-intel/internal/progress"
)

func TestPrometheusSinkTracksRunLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	ts := time.Now().UTC()
	batch := []progress.Event{
		{RunID: runID, TS: ts, Stage: progress.StageRunStart},
		{RunID: runID, TS: ts, Stage: progress.StageSourceDone, Source: "tavily", Records: 10},
		{RunID: runID, TS: ts, Stage: progress.StageSourceError, Source: "board"},
		{RunID: runID, TS: ts, Stage: progress.StageRunDone, Dur: 3 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	families, err := reg.Gather()
	require.NoError(t, err)

	// Keys carry name=value pairs because Gather sorts labels by name, not
	// by declaration order.
	byName := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := fam.GetName()
			for _, lbl := range m.GetLabel() {
				key += "/" + lbl.GetName() + "=" + lbl.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				byName[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				byName[key] = m.GetGauge().GetValue()
			}
		}
	}

	require.Equal(t, 1.0, byName["jobintel_runs_started_total"])
	require.Equal(t, 1.0, byName["jobintel_runs_completed_total/result=success"])
	require.Equal(t, 0.0, byName["jobintel_runs_running"])
	require.Equal(t, 10.0, byName["jobintel_source_records_total/source=tavily"])
	require.Equal(t, 1.0, byName["jobintel_source_outcomes_total/outcome=error/source=board"])
}

func TestPrometheusSinkDoubleStartCountsOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	ts := time.Now().UTC()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: ts, Stage: progress.StageRunStart},
		{RunID: runID, TS: ts, Stage: progress.StageRunStart},
	}))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == "jobintel_runs_running" {
			require.Equal(t, 1.0, fam.GetMetric()[0].GetGauge().GetValue())
		}
	}
}
