package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/backoffice/pkg/routes"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Session metrics
	LoginsTotal    *prometheus.CounterVec
	LogoutsTotal   *prometheus.CounterVec
	ActiveSessions prometheus.Gauge

	// Route generation metrics
	RouteTableSize      prometheus.Histogram
	PageDenials         *prometheus.CounterVec
	PageRequestsTotal   *prometheus.CounterVec
	CatalogReloadsTotal *prometheus.CounterVec

	// Login throttling
	LoginThrottledTotal prometheus.Counter

	// Editor metrics
	EditorTogglesTotal     *prometheus.CounterVec
	EditorSubmissionsTotal *prometheus.CounterVec

	// Backend metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// Token store metrics
	RedisCommandsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec
	AuditPrunedTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBWaitCount         prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "route"},
		),

		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		LogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_logouts_total",
				Help: "Session terminations by reason",
			},
			[]string{"reason"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backoffice_active_sessions",
				Help: "Gateway sessions currently held in memory",
			},
		),

		RouteTableSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backoffice_route_table_routes",
				Help:    "Number of routes in served route tables",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		PageDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_page_denials_total",
				Help: "Page requests refused because the route was not generated",
			},
			[]string{"reason"},
		),
		PageRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_page_requests_total",
				Help: "Proxied page data requests by outcome",
			},
			[]string{"outcome"},
		),
		CatalogReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_catalog_reloads_total",
				Help: "Navigation catalog reloads by status",
			},
			[]string{"status"},
		),
		LoginThrottledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_login_throttled_total",
				Help: "Login attempts refused by the rate limiter",
			},
		),

		EditorTogglesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_editor_toggles_total",
				Help: "Editor toggles by tree",
			},
			[]string{"tree", "status"},
		),
		EditorSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_editor_submissions_total",
				Help: "Editor submissions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		BackendRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_backend_requests_total",
				Help: "Requests sent to the back-office API",
			},
			[]string{"operation", "status"},
		),
		BackendRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backoffice_backend_request_duration_seconds",
				Help:    "Back-office API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_redis_commands_total",
				Help: "Total number of Redis token store commands",
			},
			[]string{"command", "status"},
		),

		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_audit_events_total",
				Help: "Audit events recorded",
			},
			[]string{"event_type", "status"},
		),
		AuditPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_audit_pruned_total",
				Help: "Audit rows removed by retention",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backoffice_db_connections_active",
				Help: "Number of in-use audit database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backoffice_db_connections_idle",
				Help: "Number of idle audit database connections",
			},
		),
		DBWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backoffice_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.LoginsTotal,
		m.LogoutsTotal,
		m.ActiveSessions,
		m.RouteTableSize,
		m.PageDenials,
		m.PageRequestsTotal,
		m.CatalogReloadsTotal,
		m.LoginThrottledTotal,
		m.EditorTogglesTotal,
		m.EditorSubmissionsTotal,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.RedisCommandsTotal,
		m.AuditEventsTotal,
		m.AuditPrunedTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBWaitCount,
	)

	return m
}

// RegisterRouteCache exposes the route table cache counters. stats is read
// at scrape time.
func (m *Metrics) RegisterRouteCache(stats func() routes.CacheStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "backoffice_route_cache_hits_total",
			Help: "Route table cache hits",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "backoffice_route_cache_misses_total",
			Help: "Route table cache misses",
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "backoffice_route_tables_generated_total",
			Help: "Route tables generated from permission trees",
		}, func() float64 { return float64(stats().Builds) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "backoffice_route_cache_entries",
			Help: "Route tables currently cached",
		}, func() float64 { return float64(stats().Size) }),
	)
}

// ObserveDBStats copies connection pool statistics into the database gauges
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

// ObserveBackend records one back-office API call
func (m *Metrics) ObserveBackend(operation string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.BackendRequestsTotal.WithLabelValues(operation, label).Inc()
	m.BackendRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
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

// routeLabel prefers the mux path template so page paths don't explode
// label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
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
