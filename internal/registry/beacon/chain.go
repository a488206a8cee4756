// Package beacon provides the process-local randomness beacon used to
// generate record attributes.
package beacon

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash"
	"sync"

	"golang.org/x/crypto/blake2b"

	"registrar/internal/registry/models"
)

// DefaultWindow is how many past ticks stay sampleable.
const DefaultWindow = 81

// KeySize is the secret key width.
const KeySize = 32

// Chain is a keyed hash chain holding one state per tick:
//
//	state(t) = blake2b_key(state(t-1) || t)
//	sample(tag, t) = blake2b_key(tag || state(t))
//
// Advancing the head fills every tick up to it that still falls inside the
// window, so any tick within window of the head is sampleable. Samples are
// reproducible for the same key and head history but cannot be predicted
// without the key.
type Chain struct {
	mu      sync.Mutex
	key     []byte
	window  uint64
	started bool
	head    models.Sequence
	states  map[models.Sequence][32]byte
}

// Option configures a Chain.
type Option func(*Chain)

// WithWindow sets how many ticks behind the head remain sampleable.
func WithWindow(window uint64) Option {
	return func(c *Chain) {
		if window > 0 {
			c.window = window
		}
	}
}

// New builds a chain over a secret key. A missing or mis-sized key fails
// with models.ErrBeaconUnavailable.
func New(key []byte, opts ...Option) (*Chain, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", models.ErrBeaconUnavailable, KeySize, len(key))
	}
	c := &Chain{
		key:    append([]byte(nil), key...),
		window: DefaultWindow,
		states: make(map[models.Sequence][32]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewRandom builds a chain over a fresh key from crypto/rand.
func NewRandom(opts ...Option) (*Chain, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("read beacon key: %w", err)
	}
	return New(key, opts...)
}

// Sample returns the beacon output for tag at tick. Ticks more than window
// behind the head are unavailable.
func (c *Chain) Sample(ctx context.Context, tag []byte, tick models.Sequence) ([32]byte, error) {
	if err := ctx.Err(); err != nil {
		return [32]byte{}, err
	}

	c.mu.Lock()
	state, err := c.stateAt(tick)
	c.mu.Unlock()
	if err != nil {
		return [32]byte{}, err
	}

	h := c.hasher()
	h.Write(tag)
	h.Write(state[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// stateAt returns the chain state at tick, advancing the head when tick is
// newer. Callers hold c.mu.
func (c *Chain) stateAt(tick models.Sequence) ([32]byte, error) {
	if !c.started || tick > c.head {
		c.advance(tick)
	}
	state, ok := c.states[tick]
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: tick %d is more than %d ticks behind head %d",
			models.ErrBeaconUnavailable, tick, c.window, c.head)
	}
	return state, nil
}

// advance moves the head to tick, storing a state for every tick in
// (head, tick] that the window retains. Ticks skipped below the window are
// folded into the first retained state.
func (c *Chain) advance(tick models.Sequence) {
	var prev [32]byte
	from := models.Sequence(0)
	if c.started {
		prev = c.states[c.head]
		from = c.head + 1
	}
	if lowest := c.oldest(tick); lowest > from {
		from = lowest
	}
	for t := from; ; t++ {
		prev = c.step(prev, t)
		c.states[t] = prev
		if t == tick {
			break
		}
	}
	c.head = tick
	c.started = true
	c.prune()
}

// oldest is the lowest tick retained while head sits at tick.
func (c *Chain) oldest(head models.Sequence) models.Sequence {
	if uint64(head) < c.window {
		return 0
	}
	return head - models.Sequence(c.window)
}

func (c *Chain) step(prev [32]byte, tick models.Sequence) [32]byte {
	h := c.hasher()
	h.Write(prev[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(tick))
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (c *Chain) prune() {
	oldest := c.oldest(c.head)
	for tick := range c.states {
		if tick < oldest {
			delete(c.states, tick)
		}
	}
}

func (c *Chain) hasher() hash.Hash {
	// New256 only fails for keys longer than 64 bytes; New enforces KeySize.
	h, _ := blake2b.New256(c.key)
	return h
}
