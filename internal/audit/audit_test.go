package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherFillsIDAndTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	require.NoError(t, pub.Emit(context.Background(), Event{UserID: "acct-1", Action: ActionWorldIDInit}))

	events, err := store.ListByUser(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Append(context.Background(), Event{Action: "a"}))
	assert.ErrorIs(t, q.Append(context.Background(), Event{Action: "b"}), ErrQueueFull)
}

func TestWorkerForwardsAndDrainsOnShutdown(t *testing.T) {
	q := NewQueue(8)
	store := NewInMemoryStore()
	pub := NewPublisher(q)
	for i := 0; i < 3; i++ {
		require.NoError(t, pub.Emit(context.Background(), Event{UserID: "acct-1", Action: ActionWorldIDVerified}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWorker(store, q.Events(), slog.New(slog.NewTextHandler(io.Discard, nil))).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	events, err := store.ListByUser(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

type failingSink struct{}

func (failingSink) Append(context.Context, Event) error { return errors.New("broker down") }

func TestWorkerSurvivesSinkFailure(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Append(context.Background(), Event{Action: "a"}))
	close(q.events)

	err := NewWorker(failingSink{}, q.Events(), slog.New(slog.NewTextHandler(io.Discard, nil))).Run(context.Background())
	assert.NoError(t, err)
}

type recordingProducer struct {
	mu      sync.Mutex
	topic   string
	key     []byte
	value   []byte
	failErr error
}

func (p *recordingProducer) Produce(_ context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic, p.key, p.value = topic, key, value
	return p.failErr
}

func TestKafkaSinkEncodesEvent(t *testing.T) {
	producer := &recordingProducer{}
	sink := NewKafkaSink(producer, "personhood.audit")
	id := uuid.New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := sink.Append(context.Background(), Event{
		ID:        id,
		Timestamp: ts,
		UserID:    "acct-1",
		Action:    ActionWorldIDVerifyRejected,
		Decision:  DecisionDenied,
		Reason:    "nullifier_already_used",
		RequestID: "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "personhood.audit", producer.topic)
	assert.Equal(t, id.String(), string(producer.key))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(producer.value, &payload))
	assert.Equal(t, "2026-03-01T12:00:00Z", payload["Timestamp"])
	assert.Equal(t, "acct-1", payload["UserID"])
	assert.Equal(t, ActionWorldIDVerifyRejected, payload["Action"])
	assert.Equal(t, "nullifier_already_used", payload["Reason"])
	assert.Equal(t, "req-1", payload["RequestID"])
	assert.NotContains(t, payload, "Subject")
}

func TestKafkaSinkWrapsProducerError(t *testing.T) {
	producer := &recordingProducer{failErr: errors.New("not leader")}
	err := NewKafkaSink(producer, "t").Append(context.Background(), Event{ID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not leader")
}
