package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Membership metrics
	MembershipMutationsTotal *prometheus.CounterVec
	MembershipBatchSize      *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Quota and AI metrics
	QuotaDenialsTotal   *prometheus.CounterVec
	AIGenerationsTotal  *prometheus.CounterVec
	AIGenerationLatency prometheus.Histogram

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		MembershipMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_membership_mutations_total",
				Help: "Membership batch mutations by entity kind, operation and outcome",
			},
			[]string{"kind", "operation", "outcome"},
		),
		MembershipBatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_membership_batch_size",
				Help:    "Number of members in a membership batch",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"kind", "operation"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_authz_decisions_total",
				Help: "Authorization guard decisions",
			},
			[]string{"kind", "decision"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_storage_operations_total",
				Help: "Total number of object storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_storage_operation_duration_seconds",
				Help:    "Object storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		QuotaDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_quota_denials_total",
				Help: "Requests rejected because a quota was exhausted",
			},
			[]string{"type"},
		),
		AIGenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_ai_generations_total",
				Help: "AI recipe generations by outcome",
			},
			[]string{"outcome"},
		),
		AIGenerationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "larder_ai_generation_duration_seconds",
				Help:    "AI recipe generation latency in seconds",
				Buckets: []float64{.5, 1, 2, 5, 10, 20, 40},
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "larder_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "larder_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.MembershipMutationsTotal,
		m.MembershipBatchSize,
		m.AuthzDecisionsTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.QuotaDenialsTotal,
		m.AIGenerationsTotal,
		m.AIGenerationLatency,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordMembership records the outcome of a membership batch. Safe on a nil receiver.
func (m *Metrics) RecordMembership(kind, operation string, size int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.MembershipMutationsTotal.WithLabelValues(kind, operation, outcome).Inc()
	m.MembershipBatchSize.WithLabelValues(kind, operation).Observe(float64(size))
}

// RecordAuthz records a guard decision. Safe on a nil receiver.
func (m *Metrics) RecordAuthz(kind string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(kind, decision).Inc()
}

// RecordStorage records an object storage call. Safe on a nil receiver.
func (m *Metrics) RecordStorage(operation, backend string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
}

// RecordQuotaDenial counts a rejected quota check. Safe on a nil receiver.
func (m *Metrics) RecordQuotaDenial(quotaType string) {
	if m == nil {
		return
	}
	m.QuotaDenialsTotal.WithLabelValues(quotaType).Inc()
}

// RecordAIGeneration records a generation attempt. Safe on a nil receiver.
func (m *Metrics) RecordAIGeneration(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.AIGenerationsTotal.WithLabelValues(outcome).Inc()
	m.AIGenerationLatency.Observe(time.Since(start).Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel uses the mux route template so IDs don't explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Register it with router.Use so the matched route is available.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
