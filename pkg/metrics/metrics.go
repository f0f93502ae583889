// Package metrics provides Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the relay.
type Metrics struct {
	registry              *prometheus.Registry
	warmupsTotal          *prometheus.CounterVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamRetriesTotal  prometheus.Counter
	resolveTotal          *prometheus.CounterVec
	resolveCacheHitsTotal prometheus.Counter
	breakerOpenTotal      *prometheus.CounterVec
	scheduleEvents        prometheus.Gauge
	scheduleRefreshErrors prometheus.Counter
}

// New creates and registers Prometheus metrics for the relay.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	warmupsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_warmups_total",
		Help: "Total number of upstream session warm-up sequences, by result",
	}, []string{"result"})
	upstreamRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_upstream_requests_total",
		Help: "Total number of upstream requests, by response status class",
	}, []string{"status_class"})
	upstreamRetriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_upstream_retries_total",
		Help: "Total number of auth-failure retries against the upstream",
	})
	resolveTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_resolve_total",
		Help: "Total number of stream resolve calls, by outcome",
	}, []string{"outcome"})
	resolveCacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_resolve_cache_hits_total",
		Help: "Total number of resolve calls served from the manifest URL cache",
	})
	breakerOpenTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_breaker_open_total",
		Help: "Total number of calls rejected by an open circuit breaker, by scope",
	}, []string{"scope"})
	scheduleEvents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_schedule_events",
		Help: "Number of events in the current merged schedule",
	})
	scheduleRefreshErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_schedule_refresh_errors_total",
		Help: "Total number of failed schedule refreshes",
	})

	registry.MustRegister(
		warmupsTotal,
		upstreamRequestsTotal,
		upstreamRetriesTotal,
		resolveTotal,
		resolveCacheHitsTotal,
		breakerOpenTotal,
		scheduleEvents,
		scheduleRefreshErrors,
	)

	return &Metrics{
		registry:              registry,
		warmupsTotal:          warmupsTotal,
		upstreamRequestsTotal: upstreamRequestsTotal,
		upstreamRetriesTotal:  upstreamRetriesTotal,
		resolveTotal:          resolveTotal,
		resolveCacheHitsTotal: resolveCacheHitsTotal,
		breakerOpenTotal:      breakerOpenTotal,
		scheduleEvents:        scheduleEvents,
		scheduleRefreshErrors: scheduleRefreshErrors,
	}
}

// IncWarmup records a warm-up sequence result ("success" or "failure").
func (m *Metrics) IncWarmup(result string) {
	m.warmupsTotal.WithLabelValues(result).Inc()
}

// IncUpstreamRequest records an upstream response by status class ("2xx", "4xx", ...).
func (m *Metrics) IncUpstreamRequest(statusClass string) {
	m.upstreamRequestsTotal.WithLabelValues(statusClass).Inc()
}

// IncUpstreamRetry records one auth-failure retry.
func (m *Metrics) IncUpstreamRetry() {
	m.upstreamRetriesTotal.Inc()
}

// IncResolve records a resolve outcome ("hit", "resolved", "not_found", ...).
func (m *Metrics) IncResolve(outcome string) {
	m.resolveTotal.WithLabelValues(outcome).Inc()
}

// IncResolveCacheHit records a resolve served from cache.
func (m *Metrics) IncResolveCacheHit() {
	m.resolveCacheHitsTotal.Inc()
}

// IncBreakerOpen records a call rejected by an open breaker.
func (m *Metrics) IncBreakerOpen(scope string) {
	m.breakerOpenTotal.WithLabelValues(scope).Inc()
}

// SetScheduleEvents sets the merged schedule size gauge.
func (m *Metrics) SetScheduleEvents(n int) {
	m.scheduleEvents.Set(float64(n))
}

// IncScheduleRefreshError records a failed schedule refresh.
func (m *Metrics) IncScheduleRefreshError() {
	m.scheduleRefreshErrors.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
