package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/store"
)

var errNoStore = errors.New("events: store not configured")

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg store.InsertDomainEventParams) (store.DomainEvent, error)
}

// Notifier reacts to emitted events (task queue, broker, etc.).
type Notifier interface {
	Notify(ctx context.Context, event store.DomainEvent) error
}

// Bus persists domain events and fans them out to downstream handlers.
//
// Callers inside a transaction use Record with the transaction's queries and
// Publish the returned events once the transaction has committed, so nothing is
// announced for work that was rolled back.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit records the event with the bus store and publishes it immediately.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (store.DomainEvent, error) {
	if b == nil || b.Store == nil {
		return store.DomainEvent{}, errNoStore
	}
	ev, err := b.Record(ctx, b.Store, topic, aggregateID, payload)
	if err != nil {
		return store.DomainEvent{}, err
	}
	return ev, b.Publish(ctx, ev)
}

// Record persists the event through es without notifying anyone.
func (b *Bus) Record(ctx context.Context, es EventStore, topic string, aggregateID uuid.UUID, payload any) (store.DomainEvent, error) {
	if es == nil {
		return store.DomainEvent{}, errNoStore
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return store.DomainEvent{}, errors.New("events: topic is required")
	}
	if aggregateID == uuid.Nil {
		return store.DomainEvent{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return store.DomainEvent{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := es.InsertDomainEvent(ctx, store.InsertDomainEventParams{
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
	})
	if err != nil {
		return store.DomainEvent{}, fmt.Errorf("events: persist event: %w", err)
	}
	return ev, nil
}

// Publish dispatches already persisted events to all notifiers. Notifier
// failures are joined and returned; the events stay recorded either way.
func (b *Bus) Publish(ctx context.Context, evs ...store.DomainEvent) error {
	if b == nil {
		return nil
	}
	var joined error
	for _, ev := range evs {
		for _, notifier := range b.Notifiers {
			if notifier == nil {
				continue
			}
			if err := notifier.Notify(ctx, ev); err != nil {
				joined = errors.Join(joined, fmt.Errorf("events: notifier %s: %w", ev.Topic, err))
			}
		}
	}
	return joined
}

// encodePayload stores raw JSON as given and marshals anything else. An
// empty payload becomes an empty object so consumers can always decode it.
func encodePayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return json.Marshal(v)
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid json")
	}
	return bytes.Clone(raw), nil
}
