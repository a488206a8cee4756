package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"registrar/internal/registry/counter"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/platform/tx"
)

// liveCounter reads the counter row FOR UPDATE and applies the same checked
// arithmetic as the in-memory counter, so overflow never reaches the table.
type liveCounter struct {
	exec    tx.Executor
	ceiling uint64
}

func (c *liveCounter) Increment(ctx context.Context) (uint64, error) {
	current, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	next, err := counter.CheckedIncrement(current, c.ceiling)
	if err != nil {
		return current, err
	}
	return next, c.store(ctx, next)
}

func (c *liveCounter) Decrement(ctx context.Context) (uint64, error) {
	current, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	next, err := counter.CheckedDecrement(current)
	if err != nil {
		return current, err
	}
	return next, c.store(ctx, next)
}

func (c *liveCounter) Value(ctx context.Context) (uint64, error) {
	return c.load(ctx)
}

func (c *liveCounter) load(ctx context.Context) (uint64, error) {
	var raw string
	err := c.exec.QueryRowContext(ctx,
		`SELECT value::text FROM registry_counters WHERE name = $1 FOR UPDATE`, liveCounterName,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: live counter row is missing", sentinel.ErrInvalidState)
		}
		return 0, classify("load counter", err)
	}
	return parseUint(raw)
}

func (c *liveCounter) store(ctx context.Context, v uint64) error {
	_, err := c.exec.ExecContext(ctx,
		`UPDATE registry_counters SET value = $2::numeric WHERE name = $1`, liveCounterName, formatUint(v))
	return classify("store counter", err)
}
