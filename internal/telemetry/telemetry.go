// Package telemetry exposes Prometheus collectors for the job-intel service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cpuUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobintel_cpu_percent",
			Help: "Current system CPU usage percentage.",
		},
	)

	memoryUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobintel_memory_percent",
			Help: "Current system memory usage percentage.",
		},
	)

	diskFreePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobintel_disk_free_percent",
			Help: "Current free space percentage on the data volume.",
		},
	)

	throttleEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobintel_throttle_events_total",
			Help: "Total number of resource samples that landed in a throttled state.",
		},
	)

	jobsScrapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobintel_jobs_scraped_total",
			Help: "Total job postings scraped, labeled by source and status.",
		},
		[]string{"source", "status"},
	)

	scrapeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobintel_scrape_duration_seconds",
			Help:    "Wall time per scraper unit run.",
			Buckets: []float64{0.5, 1, 2, 5, 15, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	recordsUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobintel_records_upserted_total",
			Help: "Total upsert outcomes, labeled by result.",
		},
		[]string{"result"},
	)

	cleanupOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobintel_cleanup_ops_total",
			Help: "Retention actions applied, labeled by action.",
		},
		[]string{"action"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobintel_queue_depth",
			Help: "Work items waiting per priority queue.",
		},
		[]string{"queue"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResourceSample updates the system gauges from one sampler pass.
func ObserveResourceSample(cpuPct, memPct, diskFreePct float64) {
	cpuUsagePercent.Set(cpuPct)
	memoryUsagePercent.Set(memPct)
	diskFreePercent.Set(diskFreePct)
}

// ObserveThrottleEvent counts one non-NORMAL sample.
func ObserveThrottleEvent() {
	throttleEventsTotal.Inc()
}

// ObserveScrape records the outcome of one scraper unit run.
func ObserveScrape(source, status string, records int, duration time.Duration) {
	jobsScrapedTotal.WithLabelValues(source, status).Add(float64(records))
	scrapeDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveUpsert counts upsert outcomes ("applied" or "failed").
func ObserveUpsert(result string, count int) {
	if count > 0 {
		recordsUpsertedTotal.WithLabelValues(result).Add(float64(count))
	}
}

// ObserveCleanup counts one retention action ("validated", "soft_deleted", "archived").
func ObserveCleanup(action string) {
	cleanupOpsTotal.WithLabelValues(action).Inc()
}

// SetQueueDepth updates the waiting-items gauge for a priority queue.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
