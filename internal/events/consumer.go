package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Consumer handles the event tasks enqueued by TaskNotifier. Every event is
// relayed to the broker when a writer is configured; payment anomalies are
// additionally raised as error logs for the on-call reconciliation queue.
type Consumer struct {
	Relay  Notifier
	Logger zerolog.Logger
}

// Register binds a handler for every known topic on mux.
func (c Consumer) Register(mux *asynq.ServeMux) {
	for _, topic := range DefaultTopics() {
		mux.HandleFunc(TaskType(topic), c.Handle)
	}
}

// Handle processes one event task. Undecodable payloads are not retried.
func (c Consumer) Handle(ctx context.Context, t *asynq.Task) error {
	ev, err := DecodeTask(t)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	ctx, span := otel.Tracer("events.consumer").Start(ctx, "consume "+ev.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "asynq"),
			attribute.String("messaging.message.id", ev.ID.String()),
		),
	)
	defer span.End()

	logger := c.Logger.With().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID.String()).
		Logger()

	if ev.Topic == TopicPaymentAnomaly {
		var detail map[string]any
		_ = json.Unmarshal(ev.Payload, &detail)
		logger.Error().Interface("anomaly", detail).Msg("payment requires manual reconciliation")
	}

	if c.Relay != nil {
		if err := c.Relay.Notify(ctx, ev); err != nil {
			logger.Warn().Err(err).Msg("relay event")
			span.RecordError(err)
			span.SetStatus(codes.Error, "relay failed")
			return err
		}
	}
	logger.Debug().Msg("event handled")
	return nil
}
