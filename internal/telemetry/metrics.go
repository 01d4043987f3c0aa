// Package telemetry carries the pipeline's observable state: prometheus
// collectors for live scraping and a sqlite journal for offline analysis of
// recorded runs.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's prometheus collectors on a private registry,
// so tests and repeated runs never collide on global registration state.
type Metrics struct {
	registry *prometheus.Registry

	OrdersProduced prometheus.Counter
	OrdersConsumed prometheus.Counter
	BatchesSent    prometheus.Counter
	SendFailures   prometheus.Counter
	RingFullDrops  prometheus.Counter
	RingOccupancy  prometheus.Gauge
	BatchAgeUS     prometheus.Histogram
}

// NewMetrics creates the collector set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		OrdersProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_orders_produced_total",
			Help: "Orders successfully pushed onto the ring.",
		}),
		OrdersConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_orders_consumed_total",
			Help: "Orders delivered through the egress transport.",
		}),
		BatchesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_batches_sent_total",
			Help: "Batches successfully delivered.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_send_failures_total",
			Help: "Batches the transport failed to deliver.",
		}),
		RingFullDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_ring_full_drops_total",
			Help: "Orders dropped by producers because the ring was full.",
		}),
		RingOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_ring_occupancy",
			Help: "Orders currently queued in the ring.",
		}),
		BatchAgeUS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_batch_age_microseconds",
			Help:    "Age of each flushed batch in microseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 10),
		}),
	}

	reg.MustRegister(
		m.OrdersProduced,
		m.OrdersConsumed,
		m.BatchesSent,
		m.SendFailures,
		m.RingFullDrops,
		m.RingOccupancy,
		m.BatchAgeUS,
	)
	return m
}

// Handler returns the /metrics handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
