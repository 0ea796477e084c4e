package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-checkout/internal/store"
)

// TaskTypePrefix prefixes the asynq task type of every forwarded event.
const TaskTypePrefix = "event:"

// TaskEnqueuer is the subset of *asynq.Client used by TaskNotifier.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier forwards events to the worker through asynq. The event id is
// used as task id so a re-published event is enqueued once.
type TaskNotifier struct {
	Client    TaskEnqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// TaskType returns the asynq task type for topic.
func TaskType(topic string) string {
	return TaskTypePrefix + topic
}

// Notify implements Notifier.
func (n TaskNotifier) Notify(ctx context.Context, ev store.DomainEvent) error {
	if n.Client == nil {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID.String())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Retention > 0 {
		opts = append(opts, asynq.Retention(n.Retention))
	}
	_, err = n.Client.EnqueueContext(ctx, asynq.NewTask(TaskType(ev.Topic), body), opts...)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", ev.Topic, err)
	}
	return nil
}

// DecodeTask reverses TaskNotifier's encoding.
func DecodeTask(t *asynq.Task) (store.DomainEvent, error) {
	var ev store.DomainEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return store.DomainEvent{}, fmt.Errorf("decode %s: %w", t.Type(), err)
	}
	return ev, nil
}
