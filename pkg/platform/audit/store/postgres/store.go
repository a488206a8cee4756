package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	id "registrar/pkg/domain"
	audit "registrar/pkg/platform/audit"
	txcontext "registrar/pkg/platform/tx"
)

// Store persists audit events in the registry_events table. When ctx carries
// a SQL transaction the insert joins it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the events table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registry_events (
			seq        BIGSERIAL PRIMARY KEY,
			id         UUID NOT NULL UNIQUE,
			category   TEXT NOT NULL,
			timestamp  TIMESTAMPTZ NOT NULL,
			action     TEXT NOT NULL,
			owner_id   UUID,
			subject    TEXT NOT NULL,
			sequence   NUMERIC(20,0) NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			payload    JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create registry_events: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS registry_events_owner_idx ON registry_events (owner_id, seq)`,
	); err != nil {
		return fmt.Errorf("create registry_events index: %w", err)
	}
	return nil
}

// Append inserts event. Re-delivery of the same event ID is ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := audit.Encode(event)
	if err != nil {
		return err
	}

	var owner *uuid.UUID
	if !event.Owner.IsNil() {
		o := uuid.UUID(event.Owner)
		owner = &o
	}

	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO registry_events (id, category, timestamp, action, owner_id, subject, sequence, request_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		uuid.UUID(event.ID),
		string(event.Category),
		event.Timestamp.UTC(),
		event.Action,
		owner,
		event.Subject,
		strconv.FormatUint(event.Sequence, 10),
		event.RequestID,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert registry event: %w", err)
	}
	return nil
}

// ListByOwner returns owner's events, oldest first.
func (s *Store) ListByOwner(ctx context.Context, owner id.AccountID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, timestamp, action, owner_id, subject, sequence::text, request_id
		FROM registry_events
		WHERE owner_id = $1
		ORDER BY seq`, uuid.UUID(owner))
	if err != nil {
		return nil, fmt.Errorf("query registry events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns at most limit of the newest events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, timestamp, action, owner_id, subject, sequence::text, request_id
		FROM registry_events
		ORDER BY seq DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query registry events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event         audit.Event
			eventID       uuid.UUID
			category      string
			ownerNullable *uuid.UUID
			sequence      string
		)
		err := rows.Scan(
			&eventID,
			&category,
			&event.Timestamp,
			&event.Action,
			&ownerNullable,
			&event.Subject,
			&sequence,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan registry event: %w", err)
		}

		event.ID = id.EventID(eventID)
		event.Category = audit.EventCategory(category)
		event.Timestamp = event.Timestamp.In(time.UTC)
		if ownerNullable != nil {
			event.Owner = id.AccountID(*ownerNullable)
		}
		event.Sequence, err = strconv.ParseUint(sequence, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse event sequence %q: %w", sequence, err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry events: %w", err)
	}
	return events, nil
}
