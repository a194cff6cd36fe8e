// Package producer publishes alert lifecycle events to the alerts.events topic.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"alert-engine/internal/events"
	kafkautil "alert-engine/internal/kafka"
)

// Producer wraps a Kafka writer and publishes alert events as a fan-out
// subscriber. Failed publishes are logged by the fan-out and never block the
// alert lifecycle.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer for the given brokers and topic.
// The producer is configured for at-least-once delivery with synchronous writes.
func NewProducer(brokers string, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic", topic,
	)

	// Hash balancer keys messages by subject so one subject's transitions
	// land on one partition, in order.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: kafkautil.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	slog.Info("Kafka producer configured",
		"write_timeout", kafkautil.WriteTimeout,
		"required_acks", "RequireOne",
		"async", false,
		"balancer", "Hash (key-based partitioning)",
		"partition_key", "subject (hashed)",
	)

	return &Producer{
		writer: writer,
		topic:  topic,
	}, nil
}

// Name identifies the producer in fan-out logs.
func (p *Producer) Name() string {
	return "kafka"
}

// buildMessage creates a Kafka message from an alert event. The message is
// keyed by the subject reference for partition locality.
func buildMessage(ev *events.AlertEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal alert event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Alert.SubjectRef()),
		Value: payload,
		Headers: []kafka.Header{
			{
				Key:   "schema_version",
				Value: []byte(fmt.Sprintf("%d", ev.SchemaVersion)),
			},
			{
				Key:   "event_type",
				Value: []byte(ev.Type),
			},
		},
		Time: time.Now(),
	}

	return msg, nil
}

// OnAlertEvent serializes the event to JSON and publishes it to Kafka.
// Returns an error if serialization or publishing fails.
func (p *Producer) OnAlertEvent(ctx context.Context, ev *events.AlertEvent) error {
	msg, err := buildMessage(ev)
	if err != nil {
		slog.Error("Failed to build alert event message",
			"alert_id", ev.Alert.ID,
			"event_type", ev.Type,
			"error", err,
		)
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("Failed to write message to Kafka",
			"alert_id", ev.Alert.ID,
			"topic", p.topic,
			"error", err,
		)
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	slog.Info("Published alert event",
		"alert_id", ev.Alert.ID,
		"event_type", ev.Type,
		"subject", ev.Alert.SubjectRef(),
	)

	return nil
}

// Close gracefully closes the Kafka writer and releases resources.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing Kafka producer", "error", err)
		return err
	}
	slog.Info("Kafka producer closed")
	return nil
}
