// Package postgres persists the registry in PostgreSQL. A registry
// transaction is one SQL transaction; per-owner advisory locks and a row lock
// on the live counter serialise conflicting mutations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"registrar/internal/registry/counter"
	"registrar/internal/registry/models"
	"registrar/internal/registry/ports"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/platform/tx"
)

const (
	defaultTxTimeout = 5 * time.Second
	liveCounterName  = "live_entities"

	// Arbitrary constant shared by every process running Migrate.
	migrationLockKey int64 = 0x7265676973747279
)

// Store is the PostgreSQL registry backend.
type Store struct {
	db        *sql.DB
	maxOwned  int
	ceiling   uint64
	txTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTxTimeout bounds transactions whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithCeiling lowers the live counter's ceiling.
func WithCeiling(ceiling uint64) Option {
	return func(s *Store) {
		s.ceiling = ceiling
	}
}

// New creates a store allowing maxOwned records per owner. The schema must
// already be migrated.
func New(db *sql.DB, maxOwned int, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if maxOwned < 0 {
		return nil, fmt.Errorf("max owned must not be negative, got %d", maxOwned)
	}
	s := &Store{
		db:        db,
		maxOwned:  maxOwned,
		ceiling:   counter.Ceiling,
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunInTx runs fn inside one SQL transaction and commits only when fn
// succeeds. The stores handed to fn read and write through the transaction
// carried in their context and fail once RunInTx returns. When ctx already
// carries a transaction (tx.WithTx) RunInTx joins it and leaves commit and
// rollback to its owner.
func (s *Store) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, joined := tx.From(ctx); joined {
		return fn(s.stores(ctx))
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin registry tx", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(s.stores(tx.WithTx(ctx, sqlTx))); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit registry tx", err)
	}
	return nil
}

func (s *Store) stores(txCtx context.Context) ports.Stores {
	exec := tx.ExecutorFrom(txCtx, s.db)
	return ports.Stores{
		Records: &recordStore{exec: exec},
		Owners:  &ownerIndex{exec: exec, maxOwned: s.maxOwned},
		Counter: &liveCounter{exec: exec, ceiling: s.ceiling},
	}
}

// Get reads a record through the transaction carried by ctx, or from the
// pool when there is none.
func (s *Store) Get(ctx context.Context, identity models.Identity) (*models.Record, error) {
	return getRecord(ctx, tx.ExecutorFrom(ctx, s.db), identity, "")
}

// ListOwned returns owner's identities in insertion order.
func (s *Store) ListOwned(ctx context.Context, owner id.AccountID) ([]models.Identity, error) {
	return listOwned(ctx, tx.ExecutorFrom(ctx, s.db), owner)
}

// Count returns the committed live-entity count.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	var raw string
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT value::text FROM registry_counters WHERE name = $1`, liveCounterName,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: live counter row is missing", sentinel.ErrInvalidState)
		}
		return 0, classify("count entities", err)
	}
	return parseUint(raw)
}
