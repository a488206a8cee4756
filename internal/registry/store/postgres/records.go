package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"registrar/internal/registry/models"
	id "registrar/pkg/domain"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/platform/tx"
)

const recordColumns = `identity, owner_id, name, age, gender, dna, lucky, seed,
	attr_sequence::text, created_at::text, created_time`

type recordStore struct {
	exec tx.Executor
}

// Get locks the row for the rest of the transaction, so a concurrent remove
// of the same identity waits and then sees it gone.
func (r *recordStore) Get(ctx context.Context, identity models.Identity) (*models.Record, error) {
	return getRecord(ctx, r.exec, identity, " FOR UPDATE")
}

// Insert never overwrites: an existing identity leaves the row untouched and
// reports sentinel.ErrConflict without aborting the transaction.
func (r *recordStore) Insert(ctx context.Context, identity models.Identity, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	res, err := r.exec.ExecContext(ctx, `
		INSERT INTO registry_records (identity, owner_id, name, age, gender, dna, lucky, seed,
			attr_sequence, created_at, created_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11)
		ON CONFLICT (identity) DO NOTHING`,
		identity[:],
		record.Owner.String(),
		record.Profile.Name,
		int64(record.Profile.Age),
		record.Profile.Gender,
		record.Attributes.DNA[:],
		int16(record.Attributes.Lucky),
		record.Attributes.Seed,
		formatUint(uint64(record.Attributes.Sequence)),
		formatUint(uint64(record.CreatedAt)),
		record.CreatedTime.UTC(),
	)
	if err != nil {
		return classify("insert record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("insert record", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (r *recordStore) Remove(ctx context.Context, identity models.Identity) error {
	res, err := r.exec.ExecContext(ctx, `DELETE FROM registry_records WHERE identity = $1`, identity[:])
	if err != nil {
		return classify("remove record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("remove record", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func getRecord(ctx context.Context, exec tx.Executor, identity models.Identity, lock string) (*models.Record, error) {
	row := exec.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM registry_records WHERE identity = $1`+lock, identity[:])
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify("get record", err)
	}
	return record, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		identityRaw, dnaRaw, seed []byte
		ownerRaw, attrSeq, seq    string
		age                       int64
		lucky                     int16
		record                    models.Record
	)
	if err := row.Scan(
		&identityRaw, &ownerRaw, &record.Profile.Name, &age, &record.Profile.Gender,
		&dnaRaw, &lucky, &seed, &attrSeq, &seq, &record.CreatedTime,
	); err != nil {
		return nil, err
	}

	identity, err := models.IdentityFromBytes(identityRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: stored identity: %v", sentinel.ErrInvalidState, err)
	}
	owner, err := uuid.Parse(ownerRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: stored owner: %v", sentinel.ErrInvalidState, err)
	}
	if len(dnaRaw) != models.DNASize {
		return nil, fmt.Errorf("%w: stored dna has %d bytes", sentinel.ErrInvalidState, len(dnaRaw))
	}
	attrSequence, err := parseUint(attrSeq)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseUint(seq)
	if err != nil {
		return nil, err
	}

	record.Identity = identity
	record.Owner = id.AccountID(owner)
	record.Profile.Age = uint32(age)
	copy(record.Attributes.DNA[:], dnaRaw)
	record.Attributes.Lucky = uint8(lucky)
	record.Attributes.Seed = seed
	record.Attributes.Sequence = models.Sequence(attrSequence)
	record.CreatedAt = models.Sequence(createdAt)
	record.CreatedTime = record.CreatedTime.UTC()
	return &record, nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: stored numeric %q: %v", sentinel.ErrInvalidState, raw, err)
	}
	return v, nil
}
