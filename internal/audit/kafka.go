package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Producer publishes a keyed record to a topic.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// KafkaSink writes events to a topic keyed by event ID.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

type eventPayload struct {
	Timestamp string `json:"Timestamp"`
	UserID    string `json:"UserID"`
	Action    string `json:"Action"`
	Subject   string `json:"Subject,omitempty"`
	Decision  string `json:"Decision,omitempty"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(eventPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:    event.UserID,
		Action:    event.Action,
		Subject:   event.Subject,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := s.producer.Produce(ctx, s.topic, []byte(event.ID.String()), value); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
