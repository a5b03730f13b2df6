// Package broker publishes order lifecycle events to Kafka. Publishing is
// the notification trigger; the notification service owns delivery.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes order events to a Kafka topic. A nil Publisher is valid
// and drops events, so the service runs without a broker configured.
type Publisher struct {
	writer *kafka.Writer
	lg     *zap.Logger
}

// NewPublisher creates a Publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, lg *zap.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
	return &Publisher{writer: writer, lg: lg}
}

// Publish writes one event, keyed by order id so per-order ordering holds.
func (p *Publisher) Publish(ctx context.Context, event OrderEvent) error {
	if p == nil {
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Time:  event.Timestamp,
	})
	if err != nil {
		return errors.Wrap(err, "write message")
	}

	p.lg.Debug("published order event",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
