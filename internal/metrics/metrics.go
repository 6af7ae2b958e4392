// Package metrics exposes Prometheus metrics for HTTP traffic, LLM calls and
// exam pipeline runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors registered in it.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	llmAttempts     *prometheus.CounterVec
	llmDuration     prometheus.Histogram
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docexam_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docexam_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		llmAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docexam_llm_attempts_total",
				Help: "Question generation attempts by outcome",
			},
			[]string{"outcome"},
		),
		llmDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docexam_llm_attempt_duration_seconds",
				Help:    "Duration of question generation attempts",
				Buckets: []float64{1, 5, 10, 30, 60, 120},
			},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docexam_runs_total",
				Help: "Upload and regeneration runs by outcome",
			},
			[]string{"kind", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docexam_run_duration_seconds",
				Help:    "Duration of upload and regeneration runs",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.requests, m.requestDuration,
		m.llmAttempts, m.llmDuration,
		m.runs, m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackSessions exports a gauge of live sessions read from count.
func (m *Metrics) TrackSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "docexam_sessions_active",
			Help: "Exam sessions held in memory",
		},
		func() float64 { return float64(count()) },
	))
}

// ObserveAttempt records one LLM generation attempt.
func (m *Metrics) ObserveAttempt(outcome string, elapsed time.Duration) {
	m.llmAttempts.WithLabelValues(outcome).Inc()
	m.llmDuration.Observe(elapsed.Seconds())
}

// ObserveRun records one upload or regeneration run.
func (m *Metrics) ObserveRun(kind, outcome string, elapsed time.Duration) {
	m.runs.WithLabelValues(kind, outcome).Inc()
	m.runDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Middleware counts requests by chi route pattern and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
