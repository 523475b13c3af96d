package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"zkcred/internal/platform/kafka/producer"
)

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaStore publishes events as JSON records keyed by subject id, so every
// event for one claim or session lands on the same partition in order.
type KafkaStore struct {
	producer Producer
	topic    string
}

func NewKafkaStore(p Producer, topic string) *KafkaStore {
	return &KafkaStore{producer: p, topic: topic}
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.SubjectID),
		Value: value,
		Headers: map[string]string{
			"action": string(event.Action),
		},
	})
}
