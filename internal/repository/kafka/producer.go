package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is one keyed message ready for publishing. Payload is marshalled
// to JSON at write time.
type Event struct {
	Key     string
	Payload interface{}
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

// PublishEvents записывает всю пачку одним вызовом, чтобы результаты
// одного запроса не размазывались по нескольким roundtrip-ам.
func (p *Producer) PublishEvents(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event %q: %w", event.Key, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.Key),
			Value: payload,
		})
	}

	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
