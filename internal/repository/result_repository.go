package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ozzus/ring-exporter/internal/domain"
	"ozzus/ring-exporter/internal/repository/kafka"
)

// ResultRepository publishes finished probe result sets to an external
// consumer. Publishing is best effort: the HTTP response never waits on a
// broker retry.
type ResultRepository interface {
	PublishResults(ctx context.Context, set domain.ResultSet) error
}

// EventPublisher is the broker-side surface the repository needs.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []kafka.Event) error
	Topic() string
}

type KafkaResultRepository struct {
	producer EventPublisher
	log      *slog.Logger
}

func NewKafkaResultRepository(producer EventPublisher, log *slog.Logger) ResultRepository {
	return &KafkaResultRepository{
		producer: producer,
		log:      log,
	}
}

// PublishResults sends one event per node in a single batch, keyed by
// hostname so a node's measurements stay ordered within their partition.
func (r *KafkaResultRepository) PublishResults(ctx context.Context, set domain.ResultSet) error {
	events := set.Events(time.Now().UTC())

	batch := make([]kafka.Event, 0, len(events))
	for _, event := range events {
		batch = append(batch, kafka.Event{Key: event.Hostname, Payload: event})
	}
	if err := r.producer.PublishEvents(ctx, batch); err != nil {
		return fmt.Errorf("failed to publish probe events: %w", err)
	}

	r.log.Debug("published probe events",
		"topic", r.producer.Topic(), "count", len(events), "request_id", set.RequestID)
	return nil
}

// NoopResultRepository drops result sets. Wired in when no broker is
// configured.
type NoopResultRepository struct{}

func NewNoopResultRepository() ResultRepository { return NoopResultRepository{} }

func (NoopResultRepository) PublishResults(context.Context, domain.ResultSet) error { return nil }
