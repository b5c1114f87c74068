// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsCreated counts accepted uploads.
	SubmissionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docscrub_submissions_created_total",
		Help: "Submissions accepted for processing.",
	})

	// JobsFinished counts jobs by terminal status and failure kind.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docscrub_jobs_finished_total",
		Help: "Processing jobs that reached a terminal status.",
	}, []string{"status", "error_kind"})

	// JobDuration observes how long a job spends in processing.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docscrub_job_duration_seconds",
		Help:    "Time from processing start to terminal status.",
		Buckets: prometheus.DefBuckets,
	})

	// Replacements observes how many regions a completed job replaced.
	Replacements = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docscrub_job_replacements",
		Help:    "Regions replaced per completed job.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	})

	// QueueDepth tracks jobs waiting in the in-process pool.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docscrub_queue_depth",
		Help: "Jobs waiting for an in-process worker.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docscrub_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docscrub_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware records request counts and latency. Routes are labelled with the
// chi pattern rather than the raw path so ids do not blow up cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
