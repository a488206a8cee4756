package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	id "registrar/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing per sink.
type EventCategory string

const (
	// CategoryCompliance covers ownership changes. These are the durable
	// record of who held what and must not be sampled.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventEntityCreated AuditEvent = "entity_created"
	EventEntityRemoved AuditEvent = "entity_removed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventEntityCreated: CategoryCompliance,
	EventEntityRemoved: CategoryCompliance,
}

// Category returns the category of a known action, or operations.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        id.EventID
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Owner is the account the action was performed for.
	Owner id.AccountID
	// Subject is the text form of the entity identity.
	Subject   string
	Sequence  uint64
	RequestID string
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// payload is the wire form shared by the stream and topic sinks.
type payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Owner     string `json:"owner,omitempty"`
	Subject   string `json:"subject"`
	Sequence  uint64 `json:"sequence"`
	RequestID string `json:"request_id,omitempty"`
}

// Encode renders the event in its wire form.
func Encode(event Event) ([]byte, error) {
	p := payload{
		ID:        event.ID.String(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    event.Action,
		Subject:   event.Subject,
		Sequence:  event.Sequence,
		RequestID: event.RequestID,
	}
	if !event.Owner.IsNil() {
		p.Owner = event.Owner.String()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return b, nil
}

// Decode parses the wire form produced by Encode.
func Decode(b []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	eventID, err := id.ParseEventID(p.ID)
	if err != nil {
		return Event{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("parse audit timestamp: %w", err)
	}
	event := Event{
		ID:        eventID,
		Category:  EventCategory(p.Category),
		Timestamp: ts,
		Action:    p.Action,
		Subject:   p.Subject,
		Sequence:  p.Sequence,
		RequestID: p.RequestID,
	}
	if p.Owner != "" {
		owner, err := id.ParseAccountID(p.Owner)
		if err != nil {
			return Event{}, err
		}
		event.Owner = owner
	}
	return event, nil
}
