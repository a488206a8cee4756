package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "registrar/pkg/domain-errors"
)

// AccountID names the account credited with owning registry entities.
type AccountID uuid.UUID

// EventID names a single emitted registry event.
type EventID uuid.UUID

func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id AccountID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id AccountID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id EventID) String() string { return uuid.UUID(id).String() }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id EventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewEventID returns a random event ID.
func NewEventID() EventID { return EventID(uuid.New()) }

// ParseAccountID parses an account ID at a trust boundary.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account_id")
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(u), nil
}

// ParseEventID parses an event ID at a trust boundary.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event_id")
	if err != nil {
		return EventID{}, err
	}
	return EventID(u), nil
}

// parseUUID enforces the shared ID invariant: non-empty, well formed, non-nil.
func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}
