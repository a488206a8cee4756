// Package sequence supplies the ambient tick that records are stamped with.
package sequence

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"registrar/internal/registry/models"
)

// DefaultInterval is the tick length used when none is configured.
const DefaultInterval = 6 * time.Second

// Clock derives ticks from wall-clock time since a genesis instant.
type Clock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithNow overrides the time source.
func WithNow(now func() time.Time) ClockOption {
	return func(c *Clock) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClock builds a clock; interval must be positive.
func NewClock(genesis time.Time, interval time.Duration, opts ...ClockOption) (*Clock, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sequence interval must be positive, got %s", interval)
	}
	c := &Clock{genesis: genesis, interval: interval, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Current returns the number of whole intervals since genesis.
func (c *Clock) Current(_ context.Context) (models.Sequence, error) {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		return 0, fmt.Errorf("clock is before genesis %s", c.genesis.Format(time.RFC3339))
	}
	return models.Sequence(elapsed / c.interval), nil
}

// Manual is a settable sequencer for tests and tooling.
type Manual struct {
	v atomic.Uint64
}

func NewManual(start models.Sequence) *Manual {
	m := &Manual{}
	m.v.Store(uint64(start))
	return m
}

func (m *Manual) Current(_ context.Context) (models.Sequence, error) {
	return models.Sequence(m.v.Load()), nil
}

// Set moves the tick to v.
func (m *Manual) Set(v models.Sequence) {
	m.v.Store(uint64(v))
}

// Advance moves the tick forward by n and returns the new tick.
func (m *Manual) Advance(n uint64) models.Sequence {
	return models.Sequence(m.v.Add(n))
}
