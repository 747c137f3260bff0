// Package events publishes order status events to Kafka for downstream
// consumers. Publishing is strictly best-effort: a broker outage changes
// nothing about an order's outcome.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/models"
)

// Publisher emits order status events to an external stream.
type Publisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
	Close() error
}

// KafkaPublisher writes status events to a single topic, keyed by order
// identifier so one order's events stay on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher verifies broker reachability and returns a
// publisher. The reachability check keeps startup honest: when it fails
// the caller should wire a NopPublisher instead.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka broker unreachable: %w", err)
	}
	conn.Close()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: time.Second,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

// PublishStatus writes one event. Errors are returned for the caller to
// log and swallow.
func (p *KafkaPublisher) PublishStatus(ctx context.Context, event models.StatusEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  event.Timestamp,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no broker is reachable.
type NopPublisher struct{}

func (NopPublisher) PublishStatus(ctx context.Context, event models.StatusEvent) error { return nil }
func (NopPublisher) Close() error                                                      { return nil }
