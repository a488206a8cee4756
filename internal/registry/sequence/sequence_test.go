package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/registry/models"
)

func TestClock(t *testing.T) {
	ctx := context.Background()
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := genesis

	clock, err := NewClock(genesis, 6*time.Second, WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	tick, err := clock.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Sequence(0), tick)

	now = genesis.Add(59 * time.Second)
	tick, err = clock.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Sequence(9), tick)

	now = genesis.Add(-time.Second)
	_, err = clock.Current(ctx)
	assert.Error(t, err)
}

func TestNewClock_RejectsNonPositiveInterval(t *testing.T) {
	_, err := NewClock(time.Now(), 0)
	assert.Error(t, err)
}

func TestManual(t *testing.T) {
	ctx := context.Background()
	m := NewManual(5)

	tick, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Sequence(5), tick)

	assert.Equal(t, models.Sequence(7), m.Advance(2))
	m.Set(1)
	tick, _ = m.Current(ctx)
	assert.Equal(t, models.Sequence(1), tick)
}
