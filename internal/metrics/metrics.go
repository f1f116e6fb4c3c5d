// Package metrics defines the gateway's Prometheus collectors. All Metrics
// methods are nil-safe so components can run unmetered in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/quote-gateway/internal/model"
)

// Metrics holds every collector the gateway exports.
type Metrics struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	providerRequests *prometheus.CounterVec

	connections prometheus.Gauge
	deliveries  prometheus.Counter
	dropped     prometheus.Counter

	refreshCycles *prometheus.CounterVec
}

// New registers all collectors on reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Cache reads served from a live entry.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Cache reads that required a fetch.",
		}, []string{"cache"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_requests_total",
			Help: "Upstream provider requests by outcome.",
		}, []string{"source", "outcome"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_subscriber_connections",
			Help: "Currently registered subscriber connections.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deliveries_total",
			Help: "Quote updates enqueued to subscribers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deliveries_dropped_total",
			Help: "Subscribers dropped for slow or failed delivery.",
		}),
		refreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_refresh_cycles_total",
			Help: "Background refresh cycles by result.",
		}, []string{"source", "result"}),
	}

	reg.MustRegister(
		m.cacheHits, m.cacheMisses,
		m.providerRequests,
		m.connections, m.deliveries, m.dropped,
		m.refreshCycles,
	)
	return m
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// ProviderRequest records one upstream call outcome ("ok", "not_found",
// "rate_limited", "transient", "validation").
func (m *Metrics) ProviderRequest(source model.Source, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(string(source), outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) Delivered() {
	if m == nil {
		return
	}
	m.deliveries.Inc()
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// RefreshCycle records one cycle result ("ok" or "skipped").
func (m *Metrics) RefreshCycle(source model.Source, result string) {
	if m == nil {
		return
	}
	m.refreshCycles.WithLabelValues(string(source), result).Inc()
}
