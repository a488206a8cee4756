// Package service implements the registration coordinator: the only writer of
// the record store, the ownership index and the global counter.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"registrar/internal/registry/attributes"
	"registrar/internal/registry/identity"
	"registrar/internal/registry/metrics"
	"registrar/internal/registry/models"
	"registrar/internal/registry/ports"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
	"registrar/pkg/requestcontext"
)

const tracerName = "registrar/internal/registry/service"

// Store is a transactional registry backend that can also be read between
// transactions.
type Store interface {
	ports.StoreTx
	ports.Reader
}

// Service coordinates create and remove across the registry structures.
type Service struct {
	store     Store
	generator *attributes.Generator
	sequencer ports.Sequencer
	events    ports.EventSink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventSink sets where Created and Removed notifications go.
func WithEventSink(sink ports.EventSink) Option {
	return func(s *Service) {
		s.events = sink
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, beacon ports.Beacon, sequencer ports.Sequencer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if sequencer == nil {
		return nil, errors.New("sequencer is required")
	}
	generator, err := attributes.New(beacon)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:     store,
		generator: generator,
		sequencer: sequencer,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateRequest carries the inputs of a mint.
type CreateRequest struct {
	Owner   id.AccountID
	Seed    []byte
	Profile models.Profile
}

// Create mints a new record owned by req.Owner and returns it.
//
// Attributes are generated before any structure is touched. Inside the
// transaction the owner's slot is reserved first, then the counter is
// incremented, then the record is inserted; a failure at any step undoes
// the steps before it. Rejections are reported as:
//   - models.ErrOwnershipLimitExceeded (conflict)
//   - models.ErrCounterOverflow (insufficient_storage)
//   - models.ErrIdentityCollision (conflict)
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Record, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry.Create",
		trace.WithAttributes(attribute.String("owner", req.Owner.String())))
	defer span.End()
	defer s.observeCreate(start)

	if req.Owner.IsNil() {
		return nil, s.rejectCreate(ctx, span, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required"))
	}
	if err := req.Profile.Validate(); err != nil {
		return nil, s.rejectCreate(ctx, span, err)
	}

	tick, err := s.sequencer.Current(ctx)
	if err != nil {
		return nil, s.rejectCreate(ctx, span, dErrors.Wrap(err, dErrors.CodeUnavailable, "sequence unavailable"))
	}
	attrs, err := s.generator.Generate(ctx, req.Seed, tick)
	if err != nil {
		return nil, s.rejectCreate(ctx, span, err)
	}

	record := &models.Record{
		Owner:       req.Owner,
		Profile:     req.Profile,
		Attributes:  attrs,
		CreatedAt:   tick,
		CreatedTime: requestcontext.Now(ctx),
	}
	record.Identity = identity.ForRecord(record)
	span.SetAttributes(attribute.String("identity", record.Identity.String()))

	var live uint64
	err = s.store.RunInTx(ctx, func(stores ports.Stores) error {
		if err := stores.Owners.Append(ctx, req.Owner, record.Identity); err != nil {
			if errors.Is(err, models.ErrCapacityExceeded) {
				return fmt.Errorf("%w: %w", models.ErrOwnershipLimitExceeded, err)
			}
			return err
		}

		count, err := stores.Counter.Increment(ctx)
		if err != nil {
			if undoErr := stores.Owners.Remove(ctx, req.Owner, record.Identity); undoErr != nil {
				return errors.Join(err, undoErr)
			}
			if errors.Is(err, models.ErrOverflow) {
				return fmt.Errorf("%w: %w", models.ErrCounterOverflow, err)
			}
			return err
		}

		if err := stores.Records.Insert(ctx, record.Identity, record); err != nil {
			if _, undoErr := stores.Counter.Decrement(ctx); undoErr != nil {
				return errors.Join(err, undoErr)
			}
			if undoErr := stores.Owners.Remove(ctx, req.Owner, record.Identity); undoErr != nil {
				return errors.Join(err, undoErr)
			}
			if errors.Is(err, sentinel.ErrConflict) {
				return fmt.Errorf("%w: %w", models.ErrIdentityCollision, err)
			}
			return err
		}

		live = count
		return nil
	})
	if err != nil {
		return nil, s.rejectCreate(ctx, span, err)
	}

	if s.metrics != nil {
		s.metrics.RecordCreated(live)
	}
	s.logAudit(ctx, "entity_created",
		"owner", req.Owner.String(),
		"identity", record.Identity.String(),
		"sequence", uint64(tick),
		"live", live,
	)
	s.emit(ctx, ports.Event{
		Type:     models.EventCreated,
		Owner:    req.Owner,
		Identity: record.Identity,
		Sequence: tick,
	})
	return record, nil
}

// Remove deletes a record owned by owner. Existence is checked before
// ownership, so a missing identity is models.ErrNotFound whoever asks.
func (s *Service) Remove(ctx context.Context, owner id.AccountID, identity models.Identity) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry.Remove", trace.WithAttributes(
		attribute.String("owner", owner.String()),
		attribute.String("identity", identity.String()),
	))
	defer span.End()
	defer s.observeRemove(start)

	if owner.IsNil() {
		return s.rejectRemove(ctx, span, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required"))
	}

	var (
		live     uint64
		sequence models.Sequence
	)
	err := s.store.RunInTx(ctx, func(stores ports.Stores) error {
		record, err := stores.Records.Get(ctx, identity)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return models.ErrNotFound
			}
			return err
		}
		if record.Owner != owner {
			return models.ErrNotOwner
		}

		if err := stores.Records.Remove(ctx, identity); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return models.ErrNotFound
			}
			return err
		}
		if err := stores.Owners.Remove(ctx, owner, identity); err != nil {
			return fmt.Errorf("%w: owner index is missing %s: %v", sentinel.ErrInvalidState, identity, err)
		}
		count, err := stores.Counter.Decrement(ctx)
		if err != nil {
			return fmt.Errorf("%w: counter: %v", sentinel.ErrInvalidState, err)
		}

		live = count
		sequence = record.CreatedAt
		return nil
	})
	if err != nil {
		return s.rejectRemove(ctx, span, err)
	}

	if s.metrics != nil {
		s.metrics.RecordRemoved(live)
	}
	s.logAudit(ctx, "entity_removed",
		"owner", owner.String(),
		"identity", identity.String(),
		"live", live,
	)
	s.emit(ctx, ports.Event{
		Type:     models.EventRemoved,
		Owner:    owner,
		Identity: identity,
		Sequence: sequence,
	})
	return nil
}

// Get returns the committed record for identity.
func (s *Service) Get(ctx context.Context, identity models.Identity) (*models.Record, error) {
	record, err := s.store.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(models.ErrNotFound, dErrors.CodeNotFound, "entity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load entity")
	}
	return record, nil
}

// ListOwned returns owner's identities in the order they were minted.
func (s *Service) ListOwned(ctx context.Context, owner id.AccountID) ([]models.Identity, error) {
	ids, err := s.store.ListOwned(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list entities")
	}
	return ids, nil
}

// Count returns the number of live records.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count entities")
	}
	return n, nil
}
