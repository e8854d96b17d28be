package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the order layer
type Metrics struct {
	registry *prometheus.Registry

	// Order outcomes per broker (outcome: acknowledged, rejected, failed)
	OrdersTotal *prometheus.CounterVec
	// Batch operations by aggregate status (success, partial_success, error)
	BatchTotal *prometheus.CounterVec
	// Venue call latency
	BrokerLatency *prometheus.HistogramVec

	// Outbound limiter rejections by category and window
	RateLimitRejections *prometheus.CounterVec
	// Inbound throttle rejections (scope: user, ip)
	ClientThrottled *prometheus.CounterVec

	// Idempotent replays served from the store
	IdempotencyReplays *prometheus.CounterVec
	// Read-path lookups (source: CACHE, STORE)
	ReadLookups *prometheus.CounterVec

	// Audit events dropped for slow subscribers
	AuditDropped prometheus.Counter

	// API
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on reg and returns the set
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vega_orders_total",
			Help: "Orders submitted to venues by outcome",
		}, []string{"broker", "outcome"}),
		BatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vega_batch_operations_total",
			Help: "Batch operations by aggregate status",
		}, []string{"operation", "status"}),
		BrokerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vega_broker_call_duration_seconds",
			Help:    "Venue call latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"broker", "operation"}),
		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vega_ratelimit_rejections_total",
			Help: "Outbound calls refused by the sliding window limiter",
		}, []string{"category", "window"}),
		ClientThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vega_client_throttled_total",
			Help: "Inbound requests refused by the client throttle",
		}, []string{"scope"}),
		IdempotencyReplays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vega_idempotency_replays_total",
			Help: "Write requests answered from the idempotency store",
		}, []string{"operation"}),
		ReadLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vega_read_lookups_total",
			Help: "Read-path lookups by view and source",
		}, []string{"view", "source"}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vega_audit_events_dropped_total",
			Help: "Audit events not delivered to a slow subscriber",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vega_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vega_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.OrdersTotal,
		m.BatchTotal,
		m.BrokerLatency,
		m.RateLimitRejections,
		m.ClientThrottled,
		m.IdempotencyReplays,
		m.ReadLookups,
		m.AuditDropped,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// NewIsolated returns a Metrics on a fresh registry (tests, CLI tools)
func NewIsolated() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBroker records one venue call
func (m *Metrics) ObserveBroker(broker, operation string, elapsed time.Duration) {
	m.BrokerLatency.WithLabelValues(broker, operation).Observe(elapsed.Seconds())
}
