package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MotionAge/sn-sub000/internal/config"
	"github.com/MotionAge/sn-sub000/internal/events"
	"github.com/MotionAge/sn-sub000/internal/obs"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards domain events to a Kafka topic, keyed by aggregate id
// so events for one record stay ordered within a partition.
type KafkaPublisher struct {
	Writer MessageWriter
}

// NewKafkaWriter builds a writer for cfg, or nil when no brokers are configured.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

type kafkaEnvelope struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// Notify implements events.Notifier.
func (p KafkaPublisher) Notify(ctx context.Context, event events.Event) error {
	if p.Writer == nil {
		return nil
	}
	value, err := json.Marshal(kafkaEnvelope{
		ID:          event.ID,
		Topic:       event.Topic,
		AggregateID: event.AggregateID,
		OccurredAt:  event.OccurredAt,
		Payload:     json.RawMessage(event.Payload),
	})
	if err != nil {
		return fmt.Errorf("kafka notify: encode: %w", err)
	}
	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.AggregateID),
		Value:   value,
		Time:    event.OccurredAt,
		Headers: []kafka.Header{{Key: "event-topic", Value: []byte(event.Topic)}},
	})
	result := "success"
	if err != nil {
		result = "error"
		err = fmt.Errorf("kafka notify: %w", err)
	}
	obs.NotificationTotal.WithLabelValues("kafka", result).Inc()
	return err
}
