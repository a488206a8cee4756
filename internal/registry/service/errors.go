package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"registrar/internal/registry/metrics"
	"registrar/internal/registry/models"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

// translateCreate maps a create failure to a coded error and a rejection
// reason. Errors that already carry a code keep it.
func translateCreate(err error) (string, error) {
	switch {
	case errors.Is(err, models.ErrOwnershipLimitExceeded):
		return metrics.ReasonOwnershipLimit, dErrors.Wrap(err, dErrors.CodeConflict, "ownership limit exceeded")
	case errors.Is(err, models.ErrCounterOverflow):
		return metrics.ReasonCounterOverflow, dErrors.Wrap(err, dErrors.CodeInsufficientStorage, "entity counter is at capacity")
	case errors.Is(err, models.ErrIdentityCollision):
		return metrics.ReasonIdentityCollision, dErrors.Wrap(err, dErrors.CodeConflict, "identity collision")
	case errors.Is(err, models.ErrBeaconUnavailable):
		return metrics.ReasonBeaconUnavailable, dErrors.Wrap(err, dErrors.CodeUnavailable, "randomness beacon unavailable")
	}
	return translateCommon(err)
}

func translateRemove(err error) (string, error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return metrics.ReasonNotFound, dErrors.Wrap(err, dErrors.CodeNotFound, "entity not found")
	case errors.Is(err, models.ErrNotOwner):
		return metrics.ReasonNotOwner, dErrors.Wrap(err, dErrors.CodeForbidden, "caller does not own entity")
	}
	return translateCommon(err)
}

func translateCommon(err error) (string, error) {
	var de *dErrors.Error
	if errors.As(err, &de) {
		switch de.Code {
		case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeUnauthorized:
			return metrics.ReasonInvalidInput, err
		}
		return metrics.ReasonInternal, err
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		return metrics.ReasonInternal, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "registry state is inconsistent")
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return metrics.ReasonInternal, dErrors.Wrap(err, dErrors.CodeUnavailable, "registry store unavailable")
	}
	return metrics.ReasonInternal, dErrors.Wrap(err, dErrors.CodeInternal, "registry operation failed")
}

func (s *Service) rejectCreate(ctx context.Context, span trace.Span, err error) error {
	reason, coded := translateCreate(err)
	if s.metrics != nil {
		s.metrics.IncrementMintRejected(reason)
	}
	s.reject(ctx, span, "entity_create_rejected", reason, coded)
	return coded
}

func (s *Service) rejectRemove(ctx context.Context, span trace.Span, err error) error {
	reason, coded := translateRemove(err)
	if s.metrics != nil {
		s.metrics.IncrementRemoveRejected(reason)
	}
	s.reject(ctx, span, "entity_remove_rejected", reason, coded)
	return coded
}

func (s *Service) reject(ctx context.Context, span trace.Span, event, reason string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	level := slog.LevelInfo
	if reason == metrics.ReasonInternal || reason == metrics.ReasonIdentityCollision {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, event, "reason", reason, "error", err)
}
