package memory

import (
	"context"

	"registrar/internal/registry/models"
	id "registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
)

// journal records how to undo each mutation made inside a transaction.
type journal struct {
	undo   []func()
	closed bool
}

func (j *journal) record(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// close invalidates the tx-scoped stores so they cannot leak past RunInTx.
func (j *journal) close() {
	j.closed = true
}

func (j *journal) check() error {
	if j.closed {
		return sentinel.ErrInvalidState
	}
	return nil
}

type txRecords struct {
	state   *State
	journal *journal
}

func (t *txRecords) Get(_ context.Context, identity models.Identity) (*models.Record, error) {
	if err := t.journal.check(); err != nil {
		return nil, err
	}
	record, ok := t.state.records[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (t *txRecords) Insert(_ context.Context, identity models.Identity, record *models.Record) error {
	if err := t.journal.check(); err != nil {
		return err
	}
	if _, exists := t.state.records[identity]; exists {
		return sentinel.ErrConflict
	}
	t.state.records[identity] = cloneRecord(record)
	t.journal.record(func() { delete(t.state.records, identity) })
	return nil
}

func (t *txRecords) Remove(_ context.Context, identity models.Identity) error {
	if err := t.journal.check(); err != nil {
		return err
	}
	previous, exists := t.state.records[identity]
	if !exists {
		return sentinel.ErrNotFound
	}
	delete(t.state.records, identity)
	t.journal.record(func() { t.state.records[identity] = previous })
	return nil
}

type txOwners struct {
	state   *State
	journal *journal
}

func (t *txOwners) Append(ctx context.Context, owner id.AccountID, identity models.Identity) error {
	if err := t.journal.check(); err != nil {
		return err
	}
	before, _ := t.state.owners.List(ctx, owner)
	if err := t.state.owners.Append(ctx, owner, identity); err != nil {
		return err
	}
	t.journal.record(func() { t.state.owners.Restore(owner, before) })
	return nil
}

func (t *txOwners) Remove(ctx context.Context, owner id.AccountID, identity models.Identity) error {
	if err := t.journal.check(); err != nil {
		return err
	}
	before, _ := t.state.owners.List(ctx, owner)
	if err := t.state.owners.Remove(ctx, owner, identity); err != nil {
		return err
	}
	t.journal.record(func() { t.state.owners.Restore(owner, before) })
	return nil
}

func (t *txOwners) List(ctx context.Context, owner id.AccountID) ([]models.Identity, error) {
	if err := t.journal.check(); err != nil {
		return nil, err
	}
	return t.state.owners.List(ctx, owner)
}

type txCounter struct {
	state   *State
	journal *journal
}

func (t *txCounter) Increment(ctx context.Context) (uint64, error) {
	if err := t.journal.check(); err != nil {
		return 0, err
	}
	before := t.state.counter.Load()
	next, err := t.state.counter.Increment(ctx)
	if err != nil {
		return next, err
	}
	t.journal.record(func() { t.state.counter.Restore(before) })
	return next, nil
}

func (t *txCounter) Decrement(ctx context.Context) (uint64, error) {
	if err := t.journal.check(); err != nil {
		return 0, err
	}
	before := t.state.counter.Load()
	next, err := t.state.counter.Decrement(ctx)
	if err != nil {
		return next, err
	}
	t.journal.record(func() { t.state.counter.Restore(before) })
	return next, nil
}

func (t *txCounter) Value(ctx context.Context) (uint64, error) {
	if err := t.journal.check(); err != nil {
		return 0, err
	}
	return t.state.counter.Value(ctx)
}
