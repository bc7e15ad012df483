package gateways

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"experience-backend/protocols"
)

// KafkaEventPublisher writes domain events keyed by entity id, so one entity's
// events stay ordered on a partition. Writes are async: Publish only queues the
// message and delivery failures are logged by the completion callback.
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(brokers []string, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			MaxAttempts:  3,
			Async:        true,
			Completion:   logDeliveryFailure,
		},
	}
}

func logDeliveryFailure(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		log.Printf("[EVENT] delivery of %s failed: %v", m.Key, err)
	}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event protocols.DomainEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// LogEventPublisher is used when no broker is configured.
type LogEventPublisher struct{}

func (LogEventPublisher) Publish(_ context.Context, event protocols.DomainEvent) error {
	log.Printf("[EVENT] %s %s", event.Type, event.EntityID)
	return nil
}
