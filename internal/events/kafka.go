package events

import (
	"context"
	"fmt"

	"campusq/pkg/kafka"
)

const (
	schemaVersion = "1"
	sourceEngine  = "campusq-engine"
)

// Producer is the subset of the Kafka producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	producer Producer
}

func NewKafkaPublisher(producer Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := ToMessage(event)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// ToMessage encodes an event with the shared header set.
func ToMessage(event Event) (kafka.Message, error) {
	msg := kafka.NewMessage().
		WithKey(event.PartitionKey()).
		WithValue(event).
		WithEventID(event.ID).
		WithEventType(string(event.Type)).
		WithSchemaVersion(schemaVersion).
		WithSource(sourceEngine).
		Build()
	if len(msg.Value) == 0 {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s", event.Type)
	}
	if event.Alert {
		msg.Headers[kafka.HeaderAlert] = "true"
	}
	return msg, nil
}

// FromMessage decodes an event published by ToMessage.
func FromMessage(msg kafka.Message) (Event, error) {
	var event Event
	if err := msg.DecodeValue(&event); err != nil {
		return Event{}, kafka.NewPermanentError("deserialization failed", err)
	}
	return event, nil
}
