// Package observability exposes Prometheus metrics for the gateway.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coworkhub/coworkhub/internal/audit"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	guardDecisions  *prometheus.CounterVec
	logins          *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coworkhub_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coworkhub_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coworkhub_guard_decisions_total",
		Help: "Access guard outcomes by reason.",
	}, []string{"reason"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coworkhub_auth_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, decisions, logins)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		guardDecisions:  decisions,
		logins:          logins,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency of every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts one access guard outcome.
func (m *Metrics) ObserveDecision(reason string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(reason).Inc()
}

// ObserveLogin counts one login attempt.
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// RegisterAuditStats exports the audit dispatcher counters.
func (m *Metrics) RegisterAuditStats(stats func() audit.Stats) {
	if m == nil || stats == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "coworkhub_audit_entries_written_total",
			Help: "Audit entries persisted by the dispatcher.",
		}, func() float64 { return float64(stats().Written) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "coworkhub_audit_entries_dropped_total",
			Help: "Audit entries dropped because the buffer was full.",
		}, func() float64 { return float64(stats().Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "coworkhub_audit_entries_failed_total",
			Help: "Audit entries the sink failed to write.",
		}, func() float64 { return float64(stats().Failed) }),
	)
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
