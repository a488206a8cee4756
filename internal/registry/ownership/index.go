// Package ownership implements the in-memory, capacity-bounded owner index.
package ownership

import (
	"context"
	"fmt"
	"slices"

	"registrar/internal/registry/models"
	id "registrar/pkg/domain"
)

// Index keeps, per owner, the identities it holds in insertion order. It is
// not safe for concurrent use; callers serialise access through their
// transaction boundary.
type Index struct {
	maxOwned int
	owners   map[id.AccountID][]models.Identity
}

// New creates an index allowing at most maxOwned identities per owner. A
// maxOwned of zero rejects every append.
func New(maxOwned int) (*Index, error) {
	if maxOwned < 0 {
		return nil, fmt.Errorf("max owned must not be negative, got %d", maxOwned)
	}
	return &Index{maxOwned: maxOwned, owners: make(map[id.AccountID][]models.Identity)}, nil
}

// MaxOwned reports the per-owner capacity.
func (x *Index) MaxOwned() int { return x.maxOwned }

// Append adds identity to the end of owner's list. The capacity check happens
// before any mutation.
func (x *Index) Append(_ context.Context, owner id.AccountID, identity models.Identity) error {
	current := x.owners[owner]
	if len(current) >= x.maxOwned {
		return models.ErrCapacityExceeded
	}
	x.owners[owner] = append(current, identity)
	return nil
}

// Remove deletes the most recent occurrence of identity from owner's list,
// keeping the order of the rest. Undoing an append therefore removes exactly
// the appended entry.
func (x *Index) Remove(_ context.Context, owner id.AccountID, identity models.Identity) error {
	current := x.owners[owner]
	i := lastIndex(current, identity)
	if i < 0 {
		return models.ErrNotFound
	}
	next := slices.Delete(slices.Clone(current), i, i+1)
	if len(next) == 0 {
		delete(x.owners, owner)
		return nil
	}
	x.owners[owner] = next
	return nil
}

func lastIndex(ids []models.Identity, identity models.Identity) int {
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == identity {
			return i
		}
	}
	return -1
}

// List returns a copy of owner's identities in insertion order.
func (x *Index) List(_ context.Context, owner id.AccountID) ([]models.Identity, error) {
	return slices.Clone(x.owners[owner]), nil
}

// Len reports how many identities owner holds.
func (x *Index) Len(owner id.AccountID) int {
	return len(x.owners[owner])
}

// Restore replaces owner's list with ids, bypassing the capacity check. It
// exists for transaction rollback, which must put back exactly what was there.
func (x *Index) Restore(owner id.AccountID, ids []models.Identity) {
	if len(ids) == 0 {
		delete(x.owners, owner)
		return
	}
	x.owners[owner] = slices.Clone(ids)
}

// Snapshot returns a deep copy of every owner's list.
func (x *Index) Snapshot() map[id.AccountID][]models.Identity {
	out := make(map[id.AccountID][]models.Identity, len(x.owners))
	for owner, ids := range x.owners {
		out[owner] = slices.Clone(ids)
	}
	return out
}
