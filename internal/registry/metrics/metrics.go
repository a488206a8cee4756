package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons used as label values.
const (
	ReasonOwnershipLimit    = "ownership_limit_exceeded"
	ReasonCounterOverflow   = "counter_overflow"
	ReasonIdentityCollision = "identity_collision"
	ReasonBeaconUnavailable = "beacon_unavailable"
	ReasonInvalidInput      = "invalid_input"
	ReasonNotFound          = "not_found"
	ReasonNotOwner          = "not_owner"
	ReasonInternal          = "internal"
)

// Metrics provides observability for the registry module.
// Tracks mint/remove outcomes, live entity count and critical path durations.
type Metrics struct {
	EntitiesCreated  prometheus.Counter
	EntitiesRemoved  prometheus.Counter
	MintRejections   *prometheus.CounterVec
	RemoveRejections *prometheus.CounterVec
	LiveEntities     prometheus.Gauge
	CreateDuration   prometheus.Histogram
	RemoveDuration   prometheus.Histogram
}

// New creates the registry metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		EntitiesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_entities_created_total",
			Help: "Total number of entities minted",
		}),
		EntitiesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "registrar_entities_removed_total",
			Help: "Total number of entities removed",
		}),
		MintRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_mint_rejections_total",
			Help: "Total number of rejected mint requests by reason",
		}, []string{"reason"}),
		RemoveRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_remove_rejections_total",
			Help: "Total number of rejected remove requests by reason",
		}, []string{"reason"}),
		LiveEntities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registrar_live_entities",
			Help: "Number of entities currently registered",
		}),
		CreateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_create_duration_seconds",
			Help:    "Duration of create operations (mint critical path)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		RemoveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrar_remove_duration_seconds",
			Help:    "Duration of remove operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// RecordCreated records a successful mint and the resulting live count.
func (m *Metrics) RecordCreated(live uint64) {
	m.EntitiesCreated.Inc()
	m.LiveEntities.Set(float64(live))
}

// RecordRemoved records a successful removal and the resulting live count.
func (m *Metrics) RecordRemoved(live uint64) {
	m.EntitiesRemoved.Inc()
	m.LiveEntities.Set(float64(live))
}

func (m *Metrics) IncrementMintRejected(reason string) {
	m.MintRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementRemoveRejected(reason string) {
	m.RemoveRejections.WithLabelValues(reason).Inc()
}

// ObserveCreate records the duration of a create operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}

// ObserveRemove records the duration of a remove operation.
func (m *Metrics) ObserveRemove(start time.Time) {
	m.RemoveDuration.Observe(time.Since(start).Seconds())
}
