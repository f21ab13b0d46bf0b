package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NewID() (string, error) {
	return time.Now().UTC().Format("20060102") + "-" + string(rune('a'+g.n.Add(1))), nil
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func newTestRunner(t *testing.T, broker Broker, cfg RunnerConfig) *Runner {
	t.Helper()
	return NewRunner(broker, &seqIDs{}, realClock{}, cfg, nil)
}

func startRunner(t *testing.T, r *Runner) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestRunnerExecutesSubmittedTask(t *testing.T) {
	t.Parallel()

	broker := NewMemoryBroker()
	r := newTestRunner(t, broker, RunnerConfig{Workers: 1})

	ran := make(chan Item, 1)
	require.NoError(t, r.Register("say-hello", func(_ context.Context, item Item) error {
		ran <- item
		return nil
	}))
	startRunner(t, r)

	id, err := r.Submit(context.Background(), "say-hello", QueueDefault, map[string]string{"to": "world"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case item := <-ran:
		require.Equal(t, id, item.ID)
		require.Equal(t, "world", item.Args["to"])
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestRunnerRetriesUntilMaxAttempts(t *testing.T) {
	t.Parallel()

	broker := NewMemoryBroker()
	r := newTestRunner(t, broker, RunnerConfig{
		Workers:      1,
		MaxAttempts:  3,
		RetryBackoff: 10 * time.Millisecond,
	})

	var calls atomic.Int64
	require.NoError(t, r.Register("always-fails", func(context.Context, Item) error {
		calls.Add(1)
		return errors.New("nope")
	}))
	startRunner(t, r)

	_, err := r.Submit(context.Background(), "always-fails", QueueDefault, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return calls.Load() == 3
	}, 3*time.Second, 20*time.Millisecond)

	// No further attempts after the cap.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int64(3), calls.Load())
}

func TestRunnerRequeuesThrottledWithoutCountingAttempt(t *testing.T) {
	t.Parallel()

	broker := NewMemoryBroker()
	r := newTestRunner(t, broker, RunnerConfig{Workers: 1, MaxAttempts: 1})

	var mu sync.Mutex
	var attempts []int
	require.NoError(t, r.Register("throttle-once", func(_ context.Context, item Item) error {
		mu.Lock()
		attempts = append(attempts, item.Attempts)
		first := len(attempts) == 1
		mu.Unlock()
		if first {
			return ErrThrottled
		}
		return nil
	}))
	startRunner(t, r)

	// Bypass Submit so the test controls the item exactly; requeue waits a
	// minute by default, so enqueue the second occurrence directly.
	require.NoError(t, broker.Enqueue(context.Background(), Item{
		ID: "t1", Name: "throttle-once", Queue: QueueDefault, EnqueuedAt: time.Now(),
	}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, broker.Enqueue(context.Background(), Item{
		ID: "t1", Name: "throttle-once", Queue: QueueDefault, EnqueuedAt: time.Now(),
	}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// Throttling did not increment the attempt counter.
	require.Equal(t, []int{0, 0}, attempts)
}

func TestRunnerRecoversPanickingHandler(t *testing.T) {
	t.Parallel()

	broker := NewMemoryBroker()
	r := newTestRunner(t, broker, RunnerConfig{
		Workers:      1,
		MaxAttempts:  2,
		RetryBackoff: 10 * time.Millisecond,
	})

	var calls atomic.Int64
	require.NoError(t, r.Register("panics", func(context.Context, Item) error {
		calls.Add(1)
		panic("boom")
	}))
	startRunner(t, r)

	_, err := r.Submit(context.Background(), "panics", QueueDefault, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := newTestRunner(t, NewMemoryBroker(), RunnerConfig{})
	require.NoError(t, r.Register("x", func(context.Context, Item) error { return nil }))
	require.Error(t, r.Register("x", func(context.Context, Item) error { return nil }))
	require.Error(t, r.Register("", nil))
}
