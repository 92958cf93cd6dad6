// Package metrics defines the Prometheus instruments of the engine.
//
// Instruments are registered against a caller-supplied Registerer so that
// several engines (and tests) can coexist in one process. A nil Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Degradation kinds.
const (
	KindParse   = "parse_degraded"
	KindSearch  = "search_unavailable"
	KindConfig  = "config_missing"
	KindTimeout = "timeout"
	KindBreaker = "breaker_open"
)

// Metrics holds every instrument.
type Metrics struct {
	ComposeRequests  *prometheus.CounterVec
	ComposeDuration  prometheus.Histogram
	Degradations     *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	SlotSearches     *prometheus.CounterVec
	BreakerState     prometheus.Gauge
	SessionSignals   prometheus.Counter
	ReindexedRecords prometheus.Counter
}

// New registers the instruments with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ComposeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_compose_requests_total",
				Help: "Total number of compose requests by mode and outcome",
			},
			[]string{"mode", "outcome"}, // outcome: "ok", "cached", "timeout"
		),
		ComposeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wayfinder_compose_duration_seconds",
				Help:    "Duration of compose requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		Degradations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_degradations_total",
				Help: "Total number of degraded responses by kind",
			},
			[]string{"kind"},
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		SlotSearches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_slot_searches_total",
				Help: "Total number of per-slot searches by slot type and strategy",
			},
			[]string{"type", "strategy"},
		),
		BreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wayfinder_breaker_state",
				Help: "Place store circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),
		SessionSignals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wayfinder_session_signals_total",
				Help: "Total number of recorded session search signals",
			},
		),
		ReindexedRecords: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wayfinder_reindexed_places_total",
				Help: "Total number of places whose derived tag bits were rebuilt",
			},
		),
	}
}

// RecordCompose records a finished compose request.
func (m *Metrics) RecordCompose(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ComposeRequests.WithLabelValues(mode, outcome).Inc()
	m.ComposeDuration.Observe(d.Seconds())
}

// RecordDegradation counts a degraded response.
func (m *Metrics) RecordDegradation(kind string) {
	if m == nil {
		return
	}
	m.Degradations.WithLabelValues(kind).Inc()
}

// RecordCache counts a cache lookup.
func (m *Metrics) RecordCache(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(cache).Inc()
	} else {
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}

// RecordSlotSearch counts a per-slot search.
func (m *Metrics) RecordSlotSearch(slotType, strategy string) {
	if m == nil {
		return
	}
	m.SlotSearches.WithLabelValues(slotType, strategy).Inc()
}

// SetBreakerState publishes the breaker state.
func (m *Metrics) SetBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BreakerState.Set(state)
}

// RecordSessionSignal counts a recorded session signal.
func (m *Metrics) RecordSessionSignal() {
	if m == nil {
		return
	}
	m.SessionSignals.Inc()
}

// RecordReindexed counts rebuilt places.
func (m *Metrics) RecordReindexed(n int) {
	if m == nil {
		return
	}
	m.ReindexedRecords.Add(float64(n))
}
