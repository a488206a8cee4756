// Package publisher fans audit events out to one or more sinks without ever
// blocking the caller.
//
// Emit places the event in a bounded buffer and returns. Run drains the
// buffer in batches and hands every event to each configured sink. A sink
// that keeps failing is put behind a circuit breaker so an outage does not
// slow delivery to the others. When the buffer is full new events are
// dropped and counted.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "registrar/pkg/domain"
	audit "registrar/pkg/platform/audit"
	"registrar/pkg/platform/circuit"
)

const (
	DefaultBufferSize    = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = 250 * time.Millisecond
	defaultDrainTimeout  = 5 * time.Second
)

// ErrBufferFull is returned by Emit when the event was dropped.
var ErrBufferFull = errors.New("audit buffer full")

type sink struct {
	name    string
	store   audit.Store
	breaker *circuit.Breaker
}

// Publisher buffers events and delivers them to sinks.
type Publisher struct {
	sinks         []*sink
	buffer        *ringBuffer
	notify        chan struct{}
	batchSize     int
	flushInterval time.Duration
	drainTimeout  time.Duration
	breakerLimit  int
	breakerWait   time.Duration
	now           func() time.Time
	logger        *slog.Logger
	metrics       *Metrics
	bufferSize    int
	pendingSinks  []pendingSink
}

type pendingSink struct {
	name  string
	store audit.Store
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithSink adds a named delivery target. Names label metrics and logs.
func WithSink(name string, store audit.Store) Option {
	return func(p *Publisher) {
		if store != nil {
			p.pendingSinks = append(p.pendingSinks, pendingSink{name: name, store: store})
		}
	}
}

// WithBufferSize bounds the number of undelivered events.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets how often Run polls the buffer when not notified.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithCircuitBreaker opens a sink's circuit after threshold consecutive
// failures. After cooldown one successful delivery closes it.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(p *Publisher) {
		p.breakerLimit = threshold
		p.breakerWait = cooldown
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithClock overrides the time source for timestamps and breaker cooldowns.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPublisher creates a publisher. Without sinks, events are accepted and
// discarded on delivery.
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		notify:        make(chan struct{}, 1),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		drainTimeout:  defaultDrainTimeout,
		now:           time.Now,
		logger:        slog.Default(),
		bufferSize:    DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.buffer = newRingBuffer(p.bufferSize)
	for _, ps := range p.pendingSinks {
		p.sinks = append(p.sinks, &sink{
			name:  ps.name,
			store: ps.store,
			breaker: circuit.New(ps.name,
				circuit.WithFailureThreshold(p.breakerLimit),
				circuit.WithSuccessThreshold(1),
				circuit.WithCooldown(p.breakerWait),
				circuit.WithClock(p.now),
			),
		})
	}
	p.pendingSinks = nil
	return p
}

// Emit enqueues event without blocking. Missing IDs and timestamps are
// filled in. A full buffer drops the event and returns ErrBufferFull.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if !p.buffer.tryEnqueue(event) {
		if p.metrics != nil {
			p.metrics.Dropped.Inc()
		}
		return ErrBufferFull
	}
	if p.metrics != nil {
		p.metrics.Pending.Set(float64(p.buffer.len()))
	}

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Run delivers buffered events until ctx is done, then drains what is left
// with a bounded timeout. It always returns nil so it can sit in an errgroup
// next to the HTTP server.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.drainTimeout)
			defer cancel()
			p.Flush(drainCtx)
			return nil
		case <-p.notify:
			p.Flush(ctx)
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush synchronously delivers everything currently buffered, stopping early
// if ctx ends. Undelivered events are not requeued.
func (p *Publisher) Flush(ctx context.Context) {
	for ctx.Err() == nil {
		batch := p.buffer.dequeueBatch(p.batchSize)
		if len(batch) == 0 {
			break
		}
		for _, event := range batch {
			p.deliver(ctx, event)
		}
	}
	if p.metrics != nil {
		p.metrics.Pending.Set(float64(p.buffer.len()))
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) {
	for _, s := range p.sinks {
		if !s.breaker.Allow() {
			p.recordFailure(s.name)
			continue
		}
		if err := s.store.Append(ctx, event); err != nil {
			p.recordFailure(s.name)
			_, change := s.breaker.RecordFailure()
			p.logger.WarnContext(ctx, "audit sink delivery failed",
				"sink", s.name,
				"action", event.Action,
				"event_id", event.ID.String(),
				"circuit_opened", change.Opened,
				"error", err,
			)
			if change.Opened && p.metrics != nil {
				p.metrics.setCircuitState(s.name, true)
			}
			continue
		}
		_, change := s.breaker.RecordSuccess()
		if change.Closed {
			p.logger.InfoContext(ctx, "audit sink recovered", "sink", s.name)
		}
		if p.metrics != nil {
			p.metrics.Delivered.WithLabelValues(s.name).Inc()
			if change.Closed {
				p.metrics.setCircuitState(s.name, false)
			}
		}
	}
}

func (p *Publisher) recordFailure(name string) {
	if p.metrics != nil {
		p.metrics.DeliveryFailures.WithLabelValues(name).Inc()
	}
}

// Pending returns the number of buffered, undelivered events.
func (p *Publisher) Pending() int {
	return p.buffer.len()
}

// Dropped returns how many events were rejected by a full buffer.
func (p *Publisher) Dropped() int64 {
	return p.buffer.droppedTotal()
}
