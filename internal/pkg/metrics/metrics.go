package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for identifier validation and lookups.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	Validations      *prometheus.CounterVec
	Lookups          *prometheus.CounterVec
	LookupDuration   *prometheus.HistogramVec
	UpstreamDuration *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	CircuitState     *prometheus.GaugeVec
	BufferedEvents   prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifier_validations_total",
			Help:      "Identifier validations by kind and outcome",
		}, []string{"kind", "valid"}),
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Reference data lookups by kind and result",
		}, []string{"kind", "result"}),
		LookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "End to end lookup duration including cache tiers",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of requests to upstream reference data sources",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"upstream", "outcome"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Lookup cache hits by tier",
		}, []string{"tier"}),
		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 while the named circuit breaker is open",
		}, []string{"name"}),
		BufferedEvents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lookup_events_buffered",
			Help:      "Lookup events waiting for Kafka",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveValidation records the outcome of a validation
func (m *Metrics) ObserveValidation(kind string, valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.Validations.WithLabelValues(kind, v).Inc()
}

// ObserveLookup records a lookup result and its duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLookup(kind, result string, start time.Time) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(kind, result).Inc()
	m.LookupDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveUpstream records the duration of an upstream request
func (m *Metrics) ObserveUpstream(upstream string, err error, start time.Time) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamDuration.WithLabelValues(upstream, outcome).Observe(time.Since(start).Seconds())
}

// CacheHit records a hit in the given tier (local, redis, postgres)
func (m *Metrics) CacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(tier).Inc()
}

// CircuitStateChanged is a resilience.StateListener
func (m *Metrics) CircuitStateChanged(name, from, to string) {
	if m == nil {
		return
	}
	open := 0.0
	if to == "open" {
		open = 1
	}
	m.CircuitState.WithLabelValues(name).Set(open)
}

// SetBufferedEvents records the size of the Kafka fallback buffer
func (m *Metrics) SetBufferedEvents(n int) {
	if m == nil {
		return
	}
	m.BufferedEvents.Set(float64(n))
}
