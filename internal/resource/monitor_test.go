package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCachedMonitor(level ThrottleLevel) *Monitor {
	m := NewMonitor(NewSampler(SamplerConfig{}, zap.NewNop()), 0, zap.NewNop())
	status := Status{Level: level}
	m.current = &status
	return m
}

func TestCanRunPolicyTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category Category
		level    ThrottleLevel
		want     bool
	}{
		{CategoryCritical, LevelNormal, true},
		{CategoryCritical, LevelPause, true},
		{CategoryAPI, LevelHeavy, true},
		{CategoryAPI, LevelPause, false},
		{CategoryScraping, LevelNormal, true},
		{CategoryScraping, LevelLight, true},
		{CategoryScraping, LevelHeavy, false},
		{CategoryScraping, LevelPause, false},
		{CategoryCleanup, LevelHeavy, true},
		{CategoryCleanup, LevelPause, false},
	}

	for _, tc := range tests {
		m := newCachedMonitor(tc.level)
		got := m.CanRun(context.Background(), tc.category)
		require.Equal(t, tc.want, got, "category=%s level=%s", tc.category, tc.level)
	}
}

func TestCanRunMonotonicInSeverity(t *testing.T) {
	t.Parallel()

	levels := []ThrottleLevel{LevelNormal, LevelLight, LevelHeavy, LevelPause}
	for _, category := range []Category{CategoryCritical, CategoryAPI, CategoryScraping, CategoryCleanup} {
		// Once a category is denied at some level it must stay denied at
		// every more severe level.
		denied := false
		for _, level := range levels {
			admitted := newCachedMonitor(level).CanRun(context.Background(), category)
			if denied {
				require.False(t, admitted, "category=%s readmitted at level=%s", category, level)
			}
			if !admitted {
				denied = true
			}
		}
	}
}

func TestCurrentReturnsCachedCopy(t *testing.T) {
	t.Parallel()

	m := newCachedMonitor(LevelLight)
	m.current.CPUPercent = 80

	got := m.Current(context.Background())
	require.Equal(t, 80.0, got.CPUPercent)

	// Mutating the returned copy must not affect the cache.
	got.CPUPercent = 5
	require.Equal(t, 80.0, m.Current(context.Background()).CPUPercent)
}

func TestNotifyIsolatesPanickingObserver(t *testing.T) {
	t.Parallel()

	m := newCachedMonitor(LevelHeavy)

	var calls []string
	m.Subscribe(func(Status) { calls = append(calls, "first") })
	m.Subscribe(func(Status) { panic("observer blew up") })
	m.Subscribe(func(Status) { calls = append(calls, "third") })

	require.NotPanics(t, func() {
		m.notify(Status{Level: LevelHeavy})
	})
	require.Equal(t, []string{"first", "third"}, calls)
}

func TestNotifyPassesStatusCopy(t *testing.T) {
	t.Parallel()

	m := newCachedMonitor(LevelHeavy)

	var seen Status
	m.Subscribe(func(s Status) { seen = s })

	m.notify(Status{Level: LevelHeavy, CPUPercent: 91})
	require.Equal(t, LevelHeavy, seen.Level)
	require.Equal(t, 91.0, seen.CPUPercent)
}
