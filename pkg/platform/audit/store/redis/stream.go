// Package redis appends audit events to a Redis stream.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	audit "registrar/pkg/platform/audit"
)

const DefaultStream = "registrar:events"

// StreamStore writes each event as one stream entry via XADD. The stream is
// trimmed approximately to maxLen entries.
type StreamStore struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// Option configures a StreamStore.
type Option func(*StreamStore)

func WithStream(name string) Option {
	return func(s *StreamStore) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithMaxLen caps the stream length. Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(s *StreamStore) {
		s.maxLen = n
	}
}

func NewStreamStore(client redis.Cmdable, opts ...Option) *StreamStore {
	s := &StreamStore{
		client: client,
		stream: DefaultStream,
		maxLen: 100_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StreamStore) Append(ctx context.Context, event audit.Event) error {
	payload, err := audit.Encode(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":       event.ID.String(),
			"action":   event.Action,
			"owner":    event.Owner.String(),
			"subject":  event.Subject,
			"sequence": strconv.FormatUint(event.Sequence, 10),
			"payload":  payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Read returns up to count entries from the start of the stream, decoded.
func (s *StreamStore) Read(ctx context.Context, count int64) ([]audit.Event, error) {
	msgs, err := s.client.XRangeN(ctx, s.stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", s.stream, err)
	}
	events := make([]audit.Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no payload", msg.ID)
		}
		event, err := audit.Decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
