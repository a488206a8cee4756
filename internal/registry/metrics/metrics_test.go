package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCreated(3)
	m.RecordCreated(4)
	m.RecordRemoved(3)
	m.IncrementMintRejected(ReasonOwnershipLimit)
	m.IncrementRemoveRejected(ReasonNotOwner)
	m.ObserveCreate(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntitiesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntitiesRemoved))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LiveEntities))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MintRejections.WithLabelValues(ReasonOwnershipLimit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoveRejections.WithLabelValues(ReasonNotOwner)))
}

func TestNew_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
