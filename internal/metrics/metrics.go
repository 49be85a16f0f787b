// Package metrics exposes Prometheus collectors for the recipe ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	feedFetchesTotal            *prometheus.CounterVec
	feedItemsTotal              *prometheus.CounterVec
	renderAttemptsTotal         *prometheus.CounterVec
	gateWaitSeconds             prometheus.Histogram
	duplicateCheckFailuresTotal prometheus.Counter
	candidatesTotal             *prometheus.CounterVec
	runsTotal                   *prometheus.CounterVec
	runDurationSeconds          prometheus.Histogram
	runInProgress               prometheus.Gauge
	storeRequestsTotal          *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		feedFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_feed_fetches_total",
				Help: "Feed fetches, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		feedItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_feed_items_total",
				Help: "Candidate links accepted from feeds, labeled by source.",
			},
			[]string{"source"},
		)

		renderAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_render_attempts_total",
				Help: "Rendering service attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		gateWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recipe_gate_wait_seconds",
				Help:    "Time spent waiting for the fetch gate minimum interval.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5},
			},
		)

		duplicateCheckFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "recipe_duplicate_check_failures_total",
				Help: "Duplicate lookups that failed and were treated as not duplicate.",
			},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_candidates_total",
				Help: "Candidates processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_runs_total",
				Help: "Pipeline runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recipe_run_duration_seconds",
				Help:    "Wall time of completed pipeline runs.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		runInProgress = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "recipe_run_in_progress",
				Help: "1 while a pipeline run is active.",
			},
		)

		storeRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recipe_store_requests_total",
				Help: "Store calls, labeled by operation and status.",
			},
			[]string{"operation", "status"},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFeed records one feed fetch and the number of candidates it produced.
func ObserveFeed(source, status string, items int) {
	Init()
	feedFetchesTotal.WithLabelValues(source, status).Inc()
	if items > 0 {
		feedItemsTotal.WithLabelValues(source).Add(float64(items))
	}
}

// ObserveRenderAttempt counts one rendering service attempt.
func ObserveRenderAttempt(outcome string) {
	Init()
	renderAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGateWait records how long a call was held back by the fetch gate.
func ObserveGateWait(d time.Duration) {
	Init()
	gateWaitSeconds.Observe(d.Seconds())
}

// ObserveDuplicateCheckFailure counts a failed duplicate lookup.
func ObserveDuplicateCheckFailure() {
	Init()
	duplicateCheckFailuresTotal.Inc()
}

// ObserveCandidate counts one processed candidate.
func ObserveCandidate(outcome string) {
	Init()
	candidatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(outcome string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		runDurationSeconds.Observe(duration.Seconds())
	}
}

// SetRunInProgress flips the in-progress gauge.
func SetRunInProgress(active bool) {
	Init()
	if active {
		runInProgress.Set(1)
		return
	}
	runInProgress.Set(0)
}

// ObserveStoreRequest counts one call against the recipe store.
func ObserveStoreRequest(operation string, err error) {
	Init()
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeRequestsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
