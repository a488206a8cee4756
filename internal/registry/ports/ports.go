// Package ports defines the collaborators the registration coordinator
// consumes. Storage backends, the randomness beacon, the sequencer and the
// event sink all live behind these interfaces.
package ports

import (
	"context"

	"registrar/internal/registry/models"
	id "registrar/pkg/domain"
)

// RecordStore is the key->record map. Insert never overwrites: an existing
// key yields sentinel.ErrConflict. Get and Remove report sentinel.ErrNotFound.
type RecordStore interface {
	Get(ctx context.Context, identity models.Identity) (*models.Record, error)
	Insert(ctx context.Context, identity models.Identity, record *models.Record) error
	Remove(ctx context.Context, identity models.Identity) error
}

// OwnerIndex is the per-owner, capacity-bounded, insertion-ordered list of
// identities.
type OwnerIndex interface {
	// Append fails with models.ErrCapacityExceeded, leaving the index
	// untouched, when the owner already holds the maximum.
	Append(ctx context.Context, owner id.AccountID, identity models.Identity) error

	// Remove fails with models.ErrNotFound when the identity is not listed
	// under owner.
	Remove(ctx context.Context, owner id.AccountID, identity models.Identity) error

	List(ctx context.Context, owner id.AccountID) ([]models.Identity, error)
}

// Counter is the global live-entity count.
type Counter interface {
	// Increment fails with models.ErrOverflow at the ceiling without
	// changing the stored value.
	Increment(ctx context.Context) (uint64, error)

	// Decrement fails with models.ErrUnderflow at zero.
	Decrement(ctx context.Context) (uint64, error)

	Value(ctx context.Context) (uint64, error)
}

// Stores groups the structures mutated together by one registry transaction.
type Stores struct {
	Records RecordStore
	Owners  OwnerIndex
	Counter Counter
}

// StoreTx provides the transactional boundary for registry mutations. If fn
// returns an error every mutation it made is discarded. Transactions never
// interleave.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(stores Stores) error) error
}

// Reader observes committed state between transactions.
type Reader interface {
	Get(ctx context.Context, identity models.Identity) (*models.Record, error)
	ListOwned(ctx context.Context, owner id.AccountID) ([]models.Identity, error)
	Count(ctx context.Context) (uint64, error)
}

// Beacon samples unpredictable bytes for a domain-separation tag at a tick.
// It fails with models.ErrBeaconUnavailable rather than returning a default.
type Beacon interface {
	Sample(ctx context.Context, tag []byte, tick models.Sequence) ([32]byte, error)
}

// Sequencer reports the current ambient tick.
type Sequencer interface {
	Current(ctx context.Context) (models.Sequence, error)
}

// Event is a registry lifecycle notification.
type Event struct {
	Type     models.EventType
	Owner    id.AccountID
	Identity models.Identity
	Sequence models.Sequence
}

// EventSink accepts lifecycle notifications. Delivery is fire-and-forget: the
// coordinator only logs a returned error.
type EventSink interface {
	Emit(ctx context.Context, event Event) error
}
