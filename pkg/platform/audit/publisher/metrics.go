package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for event delivery.
type Metrics struct {
	Dropped          prometheus.Counter
	Delivered        *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	CircuitOpen      *prometheus.GaugeVec
	Pending          prometheus.Gauge
}

// NewMetrics registers the delivery metrics on reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_events_dropped_total",
			Help: "Total number of registry events dropped because the publish buffer was full",
		}),
		Delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_events_delivered_total",
			Help: "Total number of registry events delivered, by sink",
		}, []string{"sink"}),
		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_event_delivery_failures_total",
			Help: "Total number of failed or skipped deliveries, by sink",
		}, []string{"sink"}),
		CircuitOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "registrar_event_sink_circuit_open",
			Help: "Sink circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}, []string{"sink"}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registrar_events_pending",
			Help: "Number of registry events waiting in the publish buffer",
		}),
	}
}

func (m *Metrics) setCircuitState(sink string, open bool) {
	if open {
		m.CircuitOpen.WithLabelValues(sink).Set(1)
	} else {
		m.CircuitOpen.WithLabelValues(sink).Set(0)
	}
}
