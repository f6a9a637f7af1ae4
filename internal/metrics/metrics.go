package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all gateway-level Prometheus collectors. One instance is
// created by the composition root and shared by every component.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	AdapterCalls     *prometheus.CounterVec
	AdapterErrors    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	CircuitState     *prometheus.GaugeVec
	RateLimitDropped *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
}

// NewCollector creates and registers all gateway collectors on a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of inbound requests",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Inbound request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		AdapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_adapter_calls_total",
			Help: "Total tool calls per adapter",
		}, []string{"adapter", "tool"}),
		AdapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_adapter_errors_total",
			Help: "Total failed tool calls per adapter",
		}, []string{"adapter", "tool"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_duration_seconds",
			Help:    "Outbound upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"service"}),
		RateLimitDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limit_dropped_total",
			Help: "Requests rejected by the gateway rate limiter",
		}, []string{"scope"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_retries_total",
			Help: "Retry attempts against upstream services",
		}, []string{"service"}),
	}

	reg.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.AdapterCalls,
		c.AdapterErrors,
		c.UpstreamDuration,
		c.CircuitState,
		c.RateLimitDropped,
		c.RetriesTotal,
	)

	return c
}

// Handler returns the Prometheus exposition handler for GET /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetCircuitState records a breaker state transition for a service.
func (c *Collector) SetCircuitState(service string, state int) {
	c.CircuitState.WithLabelValues(service).Set(float64(state))
}
