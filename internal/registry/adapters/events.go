// Package adapters connects registry ports to platform infrastructure.
package adapters

import (
	"context"
	"errors"

	"registrar/internal/registry/ports"
	audit "registrar/pkg/platform/audit"
	"registrar/pkg/requestcontext"
)

// AuditEmitter is the subset of the audit publisher the registry needs.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// EventSink turns registry lifecycle events into audit events.
type EventSink struct {
	emitter AuditEmitter
}

func NewEventSink(emitter AuditEmitter) (*EventSink, error) {
	if emitter == nil {
		return nil, errors.New("audit emitter is required")
	}
	return &EventSink{emitter: emitter}, nil
}

func (s *EventSink) Emit(ctx context.Context, event ports.Event) error {
	action := audit.AuditEvent(event.Type)
	return s.emitter.Emit(ctx, audit.Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		Action:    string(action),
		Owner:     event.Owner,
		Subject:   event.Identity.String(),
		Sequence:  uint64(event.Sequence),
		RequestID: requestcontext.RequestID(ctx),
	})
}
