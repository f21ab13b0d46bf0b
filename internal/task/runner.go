package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/jobs"
)

// Handler executes one named task. Returning ErrThrottled requeues the item
// without consuming an attempt.
type Handler func(ctx context.Context, item Item) error

const (
	defaultWorkers      = 2
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 30 * time.Second
	throttleRequeueWait = time.Minute
)

// RunnerConfig tunes the runner pool.
type RunnerConfig struct {
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Runner consumes the broker and dispatches items to registered handlers.
type Runner struct {
	broker Broker
	ids    jobs.IDGenerator
	clock  jobs.Clock
	logger *zap.Logger
	cfg    RunnerConfig

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRunner builds a Runner; register handlers before calling Run.
func NewRunner(broker Broker, ids jobs.IDGenerator, clock jobs.Clock, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		broker:   broker,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a task name.
func (r *Runner) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("handler registration needs a name and a func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Submit enqueues a new work item and returns its ID.
func (r *Runner) Submit(ctx context.Context, name, queue string, args map[string]string) (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	item := Item{
		ID:         id,
		Name:       name,
		Queue:      queue,
		Args:       args,
		EnqueuedAt: r.clock.Now(),
	}
	if err := r.broker.Enqueue(ctx, item); err != nil {
		return "", err
	}
	r.logger.Info("task submitted",
		zap.String("task_id", id), zap.String("name", name), zap.String("queue", queue))
	return id, nil
}

// Run blocks, consuming the broker with a pool of workers until the context
// finishes.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workLoop(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

func (r *Runner) workLoop(ctx context.Context) {
	for {
		item, err := r.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("task dequeue failed", zap.Error(err))
			continue
		}
		r.execute(ctx, item)
	}
}

func (r *Runner) execute(ctx context.Context, item Item) {
	r.mu.RLock()
	handler, ok := r.handlers[item.Name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no handler for task",
			zap.String("task_id", item.ID), zap.String("name", item.Name))
		return
	}

	err := r.runHandler(ctx, handler, item)
	switch {
	case err == nil:
		r.logger.Debug("task finished",
			zap.String("task_id", item.ID), zap.String("name", item.Name))
	case errors.Is(err, ErrThrottled):
		r.logger.Warn("task throttled, requeueing",
			zap.String("task_id", item.ID), zap.String("name", item.Name))
		r.requeue(ctx, item, throttleRequeueWait)
	default:
		item.Attempts++
		if item.Attempts >= r.cfg.MaxAttempts {
			r.logger.Error("task failed permanently",
				zap.String("task_id", item.ID),
				zap.String("name", item.Name),
				zap.Int("attempts", item.Attempts),
				zap.Error(err))
			return
		}
		backoff := r.cfg.RetryBackoff * time.Duration(1<<(item.Attempts-1))
		r.logger.Warn("task failed, retrying",
			zap.String("task_id", item.ID),
			zap.String("name", item.Name),
			zap.Int("attempt", item.Attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		r.requeue(ctx, item, backoff)
	}
}

func (r *Runner) runHandler(ctx context.Context, handler Handler, item Item) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return handler(ctx, item)
}

// requeue re-enqueues after a delay without blocking the worker.
func (r *Runner) requeue(ctx context.Context, item Item, delay time.Duration) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := r.broker.Enqueue(ctx, item); err != nil {
			r.logger.Error("task requeue failed",
				zap.String("task_id", item.ID), zap.Error(err))
		}
	}()
}
