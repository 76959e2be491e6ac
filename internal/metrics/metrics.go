// Package metrics holds the Prometheus collectors for purchase operations
// and event bridge deliveries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"iap-bridge/internal/domain"
)

type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Deliveries *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iap",
			Name:      "operations_total",
			Help:      "Purchase operations by backend, operation and result kind.",
		}, []string{"backend", "operation", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "iap",
			Name:      "operation_duration_seconds",
			Help:      "Latency of purchase operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iap",
			Name:      "bridge_deliveries_total",
			Help:      "Event bridge listener invocations by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	reg.MustRegister(m.Operations, m.Duration, m.Deliveries)
	return m
}

// ObserveOperation records one finished backend call. The result label is
// "ok" or the error kind.
func (m *Metrics) ObserveOperation(backend, operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(domain.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	m.Operations.WithLabelValues(backend, operation, result).Inc()
	m.Duration.WithLabelValues(backend, operation).Observe(time.Since(started).Seconds())
}

// ObserveDelivery has the shape of a bridge observer.
func (m *Metrics) ObserveDelivery(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.Deliveries.WithLabelValues(event, outcome).Inc()
}
