// Package memory holds the registry state in process memory: the record map,
// the owner index and the global counter, mutated together under one
// transaction boundary.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"registrar/internal/registry/counter"
	"registrar/internal/registry/models"
	"registrar/internal/registry/ownership"
	"registrar/internal/registry/ports"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

// State is the in-memory registry. Every transaction holds the single writer
// lock for its whole duration: the global counter is touched by every create
// and remove, so finer-grained locking would buy nothing. Readers take the
// read lock and therefore only observe state between transactions.
type State struct {
	mu      sync.RWMutex
	records map[models.Identity]*models.Record
	owners  *ownership.Index
	counter *counter.Counter
}

// Option configures a State.
type Option func(*State)

// WithCounter replaces the zero-valued counter, e.g. to start near the ceiling.
func WithCounter(c *counter.Counter) Option {
	return func(s *State) {
		if c != nil {
			s.counter = c
		}
	}
}

// New creates an empty state allowing maxOwned records per owner.
func New(maxOwned int, opts ...Option) (*State, error) {
	owners, err := ownership.New(maxOwned)
	if err != nil {
		return nil, err
	}
	s := &State{
		records: make(map[models.Identity]*models.Record),
		owners:  owners,
		counter: counter.New(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunInTx runs fn with exclusive access to the state. If fn fails or panics,
// the undo journal is replayed in reverse so the state is exactly what it was
// before.
func (s *State) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j := &journal{}
	defer j.close()

	stores := ports.Stores{
		Records: &txRecords{state: s, journal: j},
		Owners:  &txOwners{state: s, journal: j},
		Counter: &txCounter{state: s, journal: j},
	}
	committed := false
	defer func() {
		if !committed {
			j.rollback()
		}
	}()

	if err := fn(stores); err != nil {
		return err
	}
	committed = true
	return nil
}

// Get returns a copy of the committed record.
func (s *State) Get(_ context.Context, identity models.Identity) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

// ListOwned returns owner's identities in insertion order.
func (s *State) ListOwned(ctx context.Context, owner id.AccountID) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owners.List(ctx, owner)
}

// Count returns the committed live-entity count.
func (s *State) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter.Load(), nil
}

// Snapshot is a deep copy of the whole state, for invariant checks.
type Snapshot struct {
	Records map[models.Identity]models.Record
	Owners  map[id.AccountID][]models.Identity
	Count   uint64
}

// Snapshot copies the committed state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make(map[models.Identity]models.Record, len(s.records))
	for k, v := range s.records {
		records[k] = *cloneRecord(v)
	}
	return Snapshot{
		Records: records,
		Owners:  s.owners.Snapshot(),
		Count:   s.counter.Load(),
	}
}

// Identities lists every stored identity, unordered.
func (s Snapshot) Identities() []models.Identity {
	return slices.Collect(maps.Keys(s.Records))
}

func cloneRecord(r *models.Record) *models.Record {
	out := *r
	out.Attributes.Seed = slices.Clone(r.Attributes.Seed)
	return &out
}
