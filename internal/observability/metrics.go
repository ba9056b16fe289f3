package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	auditWriteFailed  prometheus.Counter
	authzDeniedTotal  *prometheus.CounterVec
	loginFailureTotal prometheus.Counter
}

// NewMetrics initialises the registry and the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollcall_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	auditWriteFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_audit_write_failures_total",
		Help: "Audit writes that failed after the guarded action succeeded.",
	})
	authzDenied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_authz_denied_total",
		Help: "Authorization denials by operation.",
	}, []string{"operation"})
	loginFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_login_failures_total",
		Help: "Failed login attempts.",
	})
	registry.MustRegister(requests, duration, auditWriteFailed, authzDenied, loginFailures)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		auditWriteFailed:  auditWriteFailed,
		authzDeniedTotal:  authzDenied,
		loginFailureTotal: loginFailures,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency for every HTTP request.
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

// AuditWriteFailure counts a best-effort audit write that could not land.
// This is the operational signal for trail gaps.
func (m *Metrics) AuditWriteFailure() {
	if m == nil {
		return
	}
	m.auditWriteFailed.Inc()
}

// AuthorizationDenied counts a denied operation.
func (m *Metrics) AuthorizationDenied(operation string) {
	if m == nil {
		return
	}
	m.authzDeniedTotal.WithLabelValues(operation).Inc()
}

// LoginFailure counts a rejected login attempt.
func (m *Metrics) LoginFailure() {
	if m == nil {
		return
	}
	m.loginFailureTotal.Inc()
}

// Registerer exposes the registry for custom collectors.
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
