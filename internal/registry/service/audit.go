package service

import (
	"context"
	"time"

	"registrar/internal/registry/ports"
	"registrar/pkg/requestcontext"
)

// logAudit writes an audit line for a committed mutation.
func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// emit hands a notification to the event sink. Delivery failures are logged
// and never fail the operation that already committed.
func (s *Service) emit(ctx context.Context, event ports.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit registry event",
			"event", string(event.Type),
			"identity", event.Identity.String(),
			"error", err,
		)
	}
}

func (s *Service) observeCreate(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCreate(start)
	}
}

func (s *Service) observeRemove(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRemove(start)
	}
}
