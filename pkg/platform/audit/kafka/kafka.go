// Package kafka publishes audit events to a Kafka topic, one record per
// event keyed by booking id so a booking's events stay ordered.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "rentguard/pkg/platform/audit"
)

const (
	headerEventType = "event_type"
	headerCategory  = "category"
)

// Sink produces audit events synchronously.
type Sink struct {
	client *kgo.Client
	topic  string
}

// NewClient connects a producer with acks from all in-sync replicas.
func NewClient(brokers []string, topic string, opts ...kgo.Opt) (*kgo.Client, error) {
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID("rentguard-audit"),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return client, nil
}

func NewSink(client *kgo.Client, topic string) *Sink {
	return &Sink{client: client, topic: topic}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	rec := &kgo.Record{
		Topic:     s.topic,
		Key:       []byte(event.BookingID.String()),
		Value:     value,
		Timestamp: event.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(event.Type)},
			{Key: headerCategory, Value: []byte(event.Category)},
		},
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Ping checks broker connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Decode parses a record produced by Sink.
func Decode(rec *kgo.Record) (audit.Event, error) {
	var event audit.Event
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return audit.Event{}, fmt.Errorf("decode audit record: %w", err)
	}
	return event, nil
}
