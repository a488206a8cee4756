package postgres

import (
	"context"
	"fmt"

	"registrar/internal/registry/models"
	id "registrar/pkg/domain"
	"registrar/pkg/platform/tx"
)

type ownerIndex struct {
	exec     tx.Executor
	maxOwned int
}

// lock serialises index changes for one owner until the transaction ends.
func (o *ownerIndex) lock(ctx context.Context, owner id.AccountID) error {
	_, err := o.exec.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, owner.String())
	return classify("lock owner", err)
}

// Append checks capacity under the owner lock before inserting.
func (o *ownerIndex) Append(ctx context.Context, owner id.AccountID, identity models.Identity) error {
	if err := o.lock(ctx, owner); err != nil {
		return err
	}
	var held int
	if err := o.exec.QueryRowContext(ctx,
		`SELECT count(*) FROM registry_owner_index WHERE owner_id = $1`, owner.String(),
	).Scan(&held); err != nil {
		return classify("count owned", err)
	}
	if held >= o.maxOwned {
		return models.ErrCapacityExceeded
	}
	if _, err := o.exec.ExecContext(ctx,
		`INSERT INTO registry_owner_index (owner_id, identity) VALUES ($1, $2)`,
		owner.String(), identity[:],
	); err != nil {
		return classify("append owned", err)
	}
	return nil
}

// Remove deletes the most recent entry for identity under owner.
func (o *ownerIndex) Remove(ctx context.Context, owner id.AccountID, identity models.Identity) error {
	if err := o.lock(ctx, owner); err != nil {
		return err
	}
	res, err := o.exec.ExecContext(ctx, `
		DELETE FROM registry_owner_index
		WHERE seq = (
			SELECT max(seq) FROM registry_owner_index WHERE owner_id = $1 AND identity = $2
		)`, owner.String(), identity[:])
	if err != nil {
		return classify("remove owned", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("remove owned", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (o *ownerIndex) List(ctx context.Context, owner id.AccountID) ([]models.Identity, error) {
	return listOwned(ctx, o.exec, owner)
}

func listOwned(ctx context.Context, exec tx.Executor, owner id.AccountID) ([]models.Identity, error) {
	rows, err := exec.QueryContext(ctx,
		`SELECT identity FROM registry_owner_index WHERE owner_id = $1 ORDER BY seq`, owner.String())
	if err != nil {
		return nil, classify("list owned", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classify("scan owned", err)
		}
		identity, err := models.IdentityFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("list owned: %w", err)
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list owned", err)
	}
	return out, nil
}
