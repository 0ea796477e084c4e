package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/toko-checkout/internal/store"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes events to a Kafka topic keyed by aggregate id so
// events of one order stay in one partition.
type KafkaNotifier struct {
	Writer MessageWriter
}

// NewKafkaWriter builds a synchronous writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  5,
	}
}

// Notify implements Notifier.
func (k KafkaNotifier) Notify(ctx context.Context, ev store.DomainEvent) error {
	if k.Writer == nil {
		return nil
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.AggregateID.String()),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(ev.Topic)},
			{Key: "event_id", Value: []byte(ev.ID.String())},
		},
	}
	if err := k.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", ev.Topic, err)
	}
	return nil
}
