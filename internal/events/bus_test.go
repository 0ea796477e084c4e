package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/store"
	"github.com/noah-isme/toko-checkout/internal/store/memory"
)

type captureNotifier struct {
	events []store.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event store.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

type captureEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{}, c.err
}

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	st := memory.New()
	notifier := &captureNotifier{}
	bus := events.Bus{Store: st, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, aggregate, map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.Len(t, st.Events(), 1)
	require.JSONEq(t, `{"orderId":"123"}`, string(st.Events()[0].Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
	require.Equal(t, aggregate, notifier.events[0].AggregateID)
}

func TestRecordInsideRolledBackTxLeavesNothing(t *testing.T) {
	st := memory.New()
	notifier := &captureNotifier{}
	bus := events.Bus{Store: st, Notifiers: []events.Notifier{notifier}}

	boom := errors.New("rollback")
	err := st.WithinTx(context.Background(), func(q store.Queries) error {
		_, err := bus.Record(context.Background(), q, events.TopicOrderPaid, uuid.New(), nil)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, st.Events())
	require.Empty(t, notifier.events)
}

func TestRecordValidatesInput(t *testing.T) {
	bus := events.Bus{Store: memory.New()}
	_, err := bus.Emit(context.Background(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, uuid.New(), []byte("{not json"))
	require.Error(t, err)
}

func TestPublishJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("broker down")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: memory.New(), Notifiers: []events.Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicPaymentAnomaly, uuid.New(), nil)
	require.ErrorContains(t, err, "broker down")
	require.Len(t, ok.events, 1)
}

func TestTaskNotifierRoundTrip(t *testing.T) {
	enq := &captureEnqueuer{}
	ev := store.DomainEvent{ID: uuid.New(), Topic: events.TopicPaymentAnomaly, AggregateID: uuid.New(), Payload: json.RawMessage(`{"paymentId":"p-1"}`)}

	require.NoError(t, events.TaskNotifier{Client: enq, Queue: "checkout", MaxRetry: 3}.Notify(context.Background(), ev))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, "event:payment.anomaly", enq.tasks[0].Type())
	require.Len(t, enq.opts[0], 3)

	decoded, err := events.DecodeTask(enq.tasks[0])
	require.NoError(t, err)
	require.Equal(t, ev.ID, decoded.ID)
	require.JSONEq(t, `{"paymentId":"p-1"}`, string(decoded.Payload))
}

func TestTaskNotifierIgnoresDuplicateTaskID(t *testing.T) {
	enq := &captureEnqueuer{err: asynq.ErrTaskIDConflict}
	ev := store.DomainEvent{ID: uuid.New(), Topic: events.TopicOrderPaid, AggregateID: uuid.New()}
	require.NoError(t, events.TaskNotifier{Client: enq}.Notify(context.Background(), ev))
}

func TestKafkaNotifierKeysByAggregate(t *testing.T) {
	w := &captureWriter{}
	ev := store.DomainEvent{ID: uuid.New(), Topic: events.TopicOrderPaid, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}

	require.NoError(t, events.KafkaNotifier{Writer: w}.Notify(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	require.Equal(t, ev.AggregateID.String(), string(w.msgs[0].Key))
	require.Equal(t, "topic", w.msgs[0].Headers[0].Key)
	require.Equal(t, events.TopicOrderPaid, string(w.msgs[0].Headers[0].Value))
}

func TestConsumerRelaysDecodedEvent(t *testing.T) {
	relay := &captureNotifier{}
	enq := &captureEnqueuer{}
	ev := store.DomainEvent{ID: uuid.New(), Topic: events.TopicPaymentAnomaly, AggregateID: uuid.New(), Payload: json.RawMessage(`{"kind":"ORDER_NOT_FOUND"}`)}
	require.NoError(t, events.TaskNotifier{Client: enq}.Notify(context.Background(), ev))

	c := events.Consumer{Relay: relay, Logger: zerolog.Nop()}
	require.NoError(t, c.Handle(context.Background(), enq.tasks[0]))
	require.Len(t, relay.events, 1)
	require.Equal(t, ev.ID, relay.events[0].ID)
}

func TestConsumerSkipsRetryOnGarbage(t *testing.T) {
	c := events.Consumer{Logger: zerolog.Nop()}
	err := c.Handle(context.Background(), asynq.NewTask(events.TaskType(events.TopicOrderPaid), []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestConsumerReturnsRelayErrorForRetry(t *testing.T) {
	relay := &captureNotifier{err: errors.New("broker down")}
	enq := &captureEnqueuer{}
	ev := store.DomainEvent{ID: uuid.New(), Topic: events.TopicOrderPaid, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, events.TaskNotifier{Client: enq}.Notify(context.Background(), ev))

	err := events.Consumer{Relay: relay, Logger: zerolog.Nop()}.Handle(context.Background(), enq.tasks[0])
	require.ErrorContains(t, err, "broker down")
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
