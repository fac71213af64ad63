// Package system provides system-level services for monitoring.
package system

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"norelock.dev/rpcsite/internal/utils"
)

const metricsNamespace = "rpcsite"

// MetricsService provides application metrics collection functionality.
// A site's ObserverFor value plugs into its dispatcher.
type MetricsService struct {
	logger   *utils.Logger
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	httpRequestsInProgress *prometheus.GaugeVec

	// JSON-RPC metrics
	rpcCallsTotal   *prometheus.CounterVec
	rpcCallDuration *prometheus.HistogramVec
	rpcBatchSize    *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
}

// NewMetricsService creates a new metrics service with its own registry.
func NewMetricsService(logger *utils.Logger) *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsService{
		logger:   logger.Named("metrics_service"),
		registry: registry,
	}

	m.initHTTPMetrics()
	m.initRPCMetrics()

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for exposing metrics.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *MetricsService) initHTTPMetrics() {
	factory := promauto.With(m.registry)

	m.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpRequestsInProgress = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_in_progress",
			Help:      "Number of HTTP requests currently in progress",
		},
		[]string{"method"},
	)
}

func (m *MetricsService) initRPCMetrics() {
	factory := promauto.With(m.registry)

	m.rpcCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rpc_calls_total",
			Help:      "Total number of JSON-RPC calls by outcome code",
		},
		[]string{"site", "method", "code"},
	)

	m.rpcCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Duration of JSON-RPC calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"site", "method"},
	)

	m.rpcBatchSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "rpc_batch_size",
			Help:      "Number of requests in JSON-RPC batches",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		},
		[]string{"site"},
	)

	m.rateLimited = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"path"},
	)
}

// ObserveHTTPRequest records metrics for an HTTP request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncRateLimited counts a request rejected by the rate limiter.
func (m *MetricsService) IncRateLimited(path string) {
	m.rateLimited.WithLabelValues(path).Inc()
}

// RegisterWebSocketGauge exposes the live connection count of a site.
func (m *MetricsService) RegisterWebSocketGauge(site string, count func() int) {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "ws_connections_active",
			Help:        "Number of active WebSocket connections",
			ConstLabels: prometheus.Labels{"site": site},
		},
		func() float64 { return float64(count()) },
	)
	if err := m.registry.Register(gauge); err != nil {
		m.logger.Warn("WebSocket gauge already registered", "site", site, "error", err)
	}
}

// Middleware records HTTP request metrics. The path label is the matched
// chi route pattern so that URLs do not explode label cardinality.
func (m *MetricsService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpRequestsInProgress.WithLabelValues(r.Method).Inc()
		defer m.httpRequestsInProgress.WithLabelValues(r.Method).Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveHTTPRequest(r.Method, path, status, time.Since(start))
	})
}

// ObserverFor returns an observer feeding the JSON-RPC metrics of site.
func (m *MetricsService) ObserverFor(site string) *RPCObserver {
	return &RPCObserver{metrics: m, site: site}
}

// RPCObserver records dispatcher outcomes for one site.
type RPCObserver struct {
	metrics *MetricsService
	site    string
}

// ObserveCall records one call. Code is 0 on success.
func (o *RPCObserver) ObserveCall(method string, code int, elapsed time.Duration) {
	o.metrics.rpcCallsTotal.WithLabelValues(o.site, method, strconv.Itoa(code)).Inc()
	o.metrics.rpcCallDuration.WithLabelValues(o.site, method).Observe(elapsed.Seconds())
}

// ObserveBatch records the size of one batch.
func (o *RPCObserver) ObserveBatch(size int) {
	o.metrics.rpcBatchSize.WithLabelValues(o.site).Observe(float64(size))
}
