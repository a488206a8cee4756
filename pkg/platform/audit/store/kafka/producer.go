// Package kafka publishes audit events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "registrar/pkg/platform/audit"
)

const DefaultTopic = "registrar.events"

// TopicStore produces one record per event, keyed by owner so an owner's
// events stay in order within a partition.
type TopicStore struct {
	client *kgo.Client
	topic  string
}

// NewTopicStore connects a producer to brokers.
func NewTopicStore(brokers []string, topic string, opts ...kgo.Opt) (*TopicStore, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("registrar"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &TopicStore{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (s *TopicStore) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	_, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	return nil
}

func (s *TopicStore) Append(ctx context.Context, event audit.Event) error {
	payload, err := audit.Encode(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Owner.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(event.Category)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", s.topic, err)
	}
	return nil
}

// Ping checks that at least one broker is reachable.
func (s *TopicStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *TopicStore) Close() {
	s.client.Close()
}
