package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned by Queue.Append when the worker has fallen behind.
var ErrQueueFull = errors.New("audit queue full")

// Publisher captures structured audit events. It is append-only and hands
// events to a sink so tests can swap sinks easily.
type Publisher struct {
	sink Sink
	now  func() time.Time
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink, now: time.Now}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = p.now()
	}
	return p.sink.Append(ctx, base)
}

// Queue is a bounded in-process buffer between publishers and a Worker.
type Queue struct {
	events chan Event
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{events: make(chan Event, size)}
}

// Append enqueues without blocking the caller.
func (q *Queue) Append(_ context.Context, event Event) error {
	select {
	case q.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Events() <-chan Event {
	return q.events
}
