// Package counter implements the global live-entity count with checked
// arithmetic.
package counter

import (
	"context"
	"math"

	"registrar/internal/registry/models"
)

// Ceiling is the largest value a counter can hold.
const Ceiling uint64 = math.MaxUint64

// CheckedIncrement returns v+1, or models.ErrOverflow when v is at ceiling.
func CheckedIncrement(v, ceiling uint64) (uint64, error) {
	if v >= ceiling {
		return v, models.ErrOverflow
	}
	return v + 1, nil
}

// CheckedDecrement returns v-1, or models.ErrUnderflow when v is zero.
func CheckedDecrement(v uint64) (uint64, error) {
	if v == 0 {
		return v, models.ErrUnderflow
	}
	return v - 1, nil
}

// Counter is an in-memory count. It is not safe for concurrent use; callers
// serialise access through their transaction boundary.
type Counter struct {
	value   uint64
	ceiling uint64
}

// New returns a counter starting at start with the full uint64 range.
func New(start uint64) *Counter {
	return &Counter{value: start, ceiling: Ceiling}
}

// NewWithCeiling returns a counter that overflows above ceiling.
func NewWithCeiling(start, ceiling uint64) *Counter {
	return &Counter{value: start, ceiling: ceiling}
}

// Increment adds one. The stored value is untouched on overflow.
func (c *Counter) Increment(_ context.Context) (uint64, error) {
	next, err := CheckedIncrement(c.value, c.ceiling)
	if err != nil {
		return c.value, err
	}
	c.value = next
	return next, nil
}

// Decrement subtracts one. The stored value is untouched on underflow.
func (c *Counter) Decrement(_ context.Context) (uint64, error) {
	next, err := CheckedDecrement(c.value)
	if err != nil {
		return c.value, err
	}
	c.value = next
	return next, nil
}

func (c *Counter) Value(_ context.Context) (uint64, error) {
	return c.value, nil
}

// Restore sets the value directly. It exists for transaction rollback.
func (c *Counter) Restore(v uint64) {
	c.value = v
}

// Load returns the current value without a context.
func (c *Counter) Load() uint64 {
	return c.value
}
