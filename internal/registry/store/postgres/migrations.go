package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version    int
	statements []string
}

// migrations are applied in order. Released entries are never edited; schema
// changes append a new version.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS registry_records (
				identity      BYTEA PRIMARY KEY CHECK (octet_length(identity) = 32),
				owner_id      UUID NOT NULL,
				name          TEXT NOT NULL,
				age           INTEGER NOT NULL CHECK (age >= 0),
				gender        TEXT NOT NULL,
				dna           BYTEA NOT NULL CHECK (octet_length(dna) = 32),
				lucky         SMALLINT NOT NULL CHECK (lucky BETWEEN 0 AND 255),
				seed          BYTEA NOT NULL,
				attr_sequence NUMERIC(20,0) NOT NULL,
				created_at    NUMERIC(20,0) NOT NULL,
				created_time  TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS registry_owner_index (
				seq      BIGSERIAL PRIMARY KEY,
				owner_id UUID NOT NULL,
				identity BYTEA NOT NULL REFERENCES registry_records (identity) DEFERRABLE INITIALLY DEFERRED
			)`,
			`CREATE INDEX IF NOT EXISTS registry_owner_index_owner_idx
				ON registry_owner_index (owner_id, seq)`,
			`CREATE TABLE IF NOT EXISTS registry_counters (
				name  TEXT PRIMARY KEY,
				value NUMERIC(20,0) NOT NULL CHECK (value >= 0 AND value <= 18446744073709551615)
			)`,
			`INSERT INTO registry_counters (name, value) VALUES ('live_entities', 0)
				ON CONFLICT (name) DO NOTHING`,
		},
	},
}

// Migrate brings the registry schema up to date. It is safe to call from
// several processes at once.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS registry_schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
		return err
	}

	var applied bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registry_schema_migrations WHERE version = $1)`, m.version,
	).Scan(&applied)
	if err != nil {
		return err
	}
	if applied {
		return tx.Commit()
	}

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO registry_schema_migrations (version) VALUES ($1)`, m.version,
	); err != nil {
		return err
	}
	return tx.Commit()
}
