// Package api exposes the HTTP interface for the job-intel service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/config"
	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/resource"
	"github.com/jobintel/job-intel/internal/store"
	"github.com/jobintel/job-intel/internal/summary"
	"github.com/jobintel/job-intel/internal/task"
	"github.com/jobintel/job-intel/internal/telemetry"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Submitter enqueues background work and returns the work-item ID.
type Submitter interface {
	Submit(ctx context.Context, name, queue string, args map[string]string) (string, error)
}

// ResourceReader is the slice of the resource monitor the API needs.
type ResourceReader interface {
	Current(ctx context.Context) resource.Status
	CanRun(ctx context.Context, category resource.Category) bool
}

// Pinger reports downstream readiness; the pgx pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the stores, the monitor, and the task runner.
type Server struct {
	router    chi.Router
	store     jobs.Store
	summaries *summary.Generator
	monitor   ResourceReader
	submitter Submitter
	pinger    Pinger
	logger    *zap.Logger
	cfg       config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	recordStore jobs.Store,
	summaries *summary.Generator,
	monitor ResourceReader,
	submitter Submitter,
	pinger Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     recordStore,
		summaries: summaries,
		monitor:   monitor,
		submitter: submitter,
		pinger:    pinger,
		logger:    logger,
		cfg:       cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(s.admissionMiddleware)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Get("/{id}", s.getJob)
		})
		r.Get("/summary", s.getSummary)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/resources", s.getResources)
			r.Post("/scrape", s.triggerTask(task.NameScrapeSource, task.QueueDefault))
			r.Post("/cleanup", s.triggerTask(task.NameRunCleanup, task.QueueLow))
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobs.ListFilter{
		Source: r.URL.Query().Get("source"),
		Limit:  queryInt(r, "limit", defaultPageLimit),
		Offset: queryInt(r, "offset", 0),
	}
	if filter.Limit <= 0 || filter.Limit > maxPageLimit {
		filter.Limit = defaultPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if records == nil {
		records = []jobs.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   records,
		"offset": filter.Offset,
		"limit":  filter.Limit,
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.Int64("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": rec})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summaries.Generate(r.Context())
	if err != nil {
		s.logger.Error("summary generation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getResources(w http.ResponseWriter, r *http.Request) {
	status := s.monitor.Current(r.Context())
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) triggerTask(name, queue string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.submitter.Submit(r.Context(), name, queue, nil)
		if err != nil {
			s.logger.Error("task submit failed",
				zap.String("task", name), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to enqueue task")
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "task": name})
	}
}

// admissionMiddleware sheds API traffic only in the pause tier; health and
// metrics endpoints sit outside /v1 and always answer.
func (s *Server) admissionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.monitor != nil && !s.monitor.CanRun(r.Context(), resource.CategoryAPI) {
			s.writeError(w, http.StatusServiceUnavailable, "service is shedding load")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSONStatic(w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSONStatic(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
