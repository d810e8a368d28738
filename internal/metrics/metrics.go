// Package metrics exposes Prometheus collectors for engine operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's collectors bound to one registry.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	races      *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dd",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by name and result.",
		}, []string{"operation", "result"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dd",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		races: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dd",
			Subsystem: "engine",
			Name:      "write_races_total",
			Help:      "Conditional writes that lost against a concurrent mutation.",
		}, []string{"operation"}),
	}
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.durations.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveLostRace records one conditional write conflict.
func (m *Metrics) ObserveLostRace(operation string) {
	if m == nil {
		return
	}
	m.races.WithLabelValues(operation).Inc()
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
