package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gatekeeper.
type Metrics struct {
	// Access check metrics
	AccessChecksTotal   *prometheus.CounterVec
	AccessCheckDuration *prometheus.HistogramVec

	// Verification cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration prometheus.Histogram

	// Config store metrics
	ConfigReadsTotal *prometheus.CounterVec

	// Audit metrics
	DenialEventsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_access_checks_total",
				Help: "Total number of access check decisions",
			},
			[]string{"reason", "outcome"},
		),
		AccessCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_access_check_duration_seconds",
				Help:    "Access check duration in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"path"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_provider_requests_total",
				Help: "Total number of role verification provider calls",
			},
			[]string{"status"},
		),
		ProviderRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_provider_request_duration_seconds",
				Help:    "Role verification provider call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2},
			},
		),

		ConfigReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_config_reads_total",
				Help: "Total number of guild configuration reads",
			},
			[]string{"status"},
		),

		DenialEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_denial_events_total",
				Help: "Total number of denial audit events written",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		m.AccessChecksTotal,
		m.AccessCheckDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
		m.ConfigReadsTotal,
		m.DenialEventsTotal,
	)

	return m
}

// ObserveAccessCheck records one decision.
func (m *Metrics) ObserveAccessCheck(reason string, allowed bool, path string, duration time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.AccessChecksTotal.WithLabelValues(reason, outcome).Inc()
	m.AccessCheckDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// ObserveProviderCall records one provider round trip.
func (m *Metrics) ObserveProviderCall(status string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(status).Inc()
	m.ProviderRequestDuration.Observe(duration.Seconds())
}

// RecordCacheHit increments the hit counter for the named cache.
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments the miss counter for the named cache.
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordDenialEvent counts a persisted denial audit event.
func (m *Metrics) RecordDenialEvent(reason string) {
	m.DenialEventsTotal.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
