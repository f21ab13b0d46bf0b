// Command jobintel runs the job-posting intelligence service: the HTTP API,
// the background task runner, and the scheduled scrape and cleanup cycles.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/api"
	"github.com/jobintel/job-intel/internal/clock/system"
	"github.com/jobintel/job-intel/internal/config"
	"github.com/jobintel/job-intel/internal/freshness"
	"github.com/jobintel/job-intel/internal/id/uuid"
	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/logging"
	"github.com/jobintel/job-intel/internal/progress"
	"github.com/jobintel/job-intel/internal/progress/sinks"
	"github.com/jobintel/job-intel/internal/resource"
	"github.com/jobintel/job-intel/internal/scraper"
	"github.com/jobintel/job-intel/internal/scraper/board"
	"github.com/jobintel/job-intel/internal/scraper/tavily"
	"github.com/jobintel/job-intel/internal/store"
	"github.com/jobintel/job-intel/internal/summary"
	"github.com/jobintel/job-intel/internal/task"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := system.New()
	ids := uuid.New()

	pool, err := store.NewPool(ctx, store.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMinute) * time.Minute,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	records, err := store.NewRecordStore(pool, logger)
	if err != nil {
		return err
	}
	metrics, err := store.NewMetricStore(pool, logger)
	if err != nil {
		return err
	}

	sampler := resource.NewSampler(resource.SamplerConfig{
		DataPath:           cfg.Resources.DataPath,
		MinFreeDiskPercent: cfg.Resources.MinFreeDiskPercent,
		MaxCPUPercent:      cfg.Resources.MaxCPUPercent,
	}, logger)
	monitor := resource.NewMonitor(sampler, cfg.SampleInterval(), logger)
	go monitor.Run(ctx)

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
		sinks.NewMetricSink(metrics, logger),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	orch := scraper.NewOrchestrator(monitor, clk, logger,
		scraper.WithMaxConcurrent(cfg.Scrape.MaxConcurrent),
		scraper.WithEmitter(hub),
		scraper.WithApplier(func(ctx context.Context, _ string, recs []jobs.Record) (int, error) {
			return records.UpsertBatch(ctx, recs)
		}),
	)
	if err := registerUnits(orch, cfg, clk, logger); err != nil {
		return err
	}

	retention := freshness.NewManager(records, monitor, &http.Client{Timeout: cfg.ProbeTimeout()}, clk, freshness.Policy{
		ExpiredDays:  cfg.Retention.ExpiredDays,
		ArchiveDays:  cfg.Retention.ArchiveDays,
		BatchSize:    cfg.Retention.BatchSize,
		ProbeTimeout: cfg.ProbeTimeout(),
	}, logger)
	retention.SetEmitter(hub)

	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	runner := task.NewRunner(broker, ids, clk, task.RunnerConfig{
		Workers:      cfg.Tasks.Workers,
		MaxAttempts:  cfg.Tasks.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff(),
	}, logger)
	handlers := task.Handlers{
		Monitor:      monitor,
		Broker:       broker,
		Orchestrator: orch,
		Freshness:    retention,
		Logger:       logger,
	}
	if err := handlers.RegisterAll(runner); err != nil {
		return err
	}
	go runner.Run(ctx)

	scheduler := task.NewScheduler(runner, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	summaries := summary.NewGenerator(records, metrics, clk, logger)
	server := api.NewServer(records, summaries, monitor, runner, pool, cfg, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func registerUnits(orch *scraper.Orchestrator, cfg config.Config, clk *system.Clock, logger *zap.Logger) error {
	tavilyUnit := tavily.New(tavily.Config{
		APIKey:       cfg.Scrape.Tavily.APIKey,
		Queries:      cfg.Scrape.Tavily.Queries,
		MaxResults:   cfg.Scrape.Tavily.MaxResults,
		RateLimitRPM: cfg.Scrape.Tavily.RateLimitRPM,
		Enabled:      cfg.Scrape.Tavily.Enabled,
	}, nil, clk, logger)
	if err := orch.Register(tavilyUnit); err != nil {
		return err
	}

	for _, bc := range cfg.Scrape.Boards {
		unit, err := board.New(board.Config{
			Name: bc.Name,
			URL:  bc.URL,
			Selectors: board.Selectors{
				Card:     bc.Selectors.Card,
				Title:    bc.Selectors.Title,
				Company:  bc.Selectors.Company,
				Location: bc.Selectors.Location,
				Salary:   bc.Selectors.Salary,
				Link:     bc.Selectors.Link,
			},
			UserAgent:  cfg.Scrape.UserAgent,
			Delay:      time.Duration(bc.DelayMs) * time.Millisecond,
			MaxRecords: bc.MaxRecords,
			Enabled:    bc.Enabled,
		}, clk, logger)
		if err != nil {
			return fmt.Errorf("configure board %q: %w", bc.Name, err)
		}
		if err := orch.Register(unit); err != nil {
			return err
		}
	}
	return nil
}

func newBroker(ctx context.Context, cfg config.Config, logger *zap.Logger) (task.Broker, error) {
	if cfg.Redis.Enabled {
		broker, err := task.NewRedisBroker(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("connect redis broker: %w", err)
		}
		logger.Info("using redis task broker")
		return broker, nil
	}
	return task.NewMemoryBroker(), nil
}
