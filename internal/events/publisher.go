package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// EventType identifies a booking lifecycle event.
type EventType string

const (
	BookingConfirmed EventType = "booking.confirmed"
	BookingCancelled EventType = "booking.cancelled"
)

// BookingEvent is the payload published for downstream consumers
// (notifications, reporting) whenever a booking changes state.
type BookingEvent struct {
	Type        EventType `json:"type"`
	BookingID   uuid.UUID `json:"booking_id"`
	Reference   string    `json:"reference"`
	TripID      uuid.UUID `json:"trip_id"`
	SeatNumbers []int     `json:"seat_numbers"`
	Holder      string    `json:"holder"`
	TotalPrice  float64   `json:"total_price"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher publishes booking events.
type Publisher interface {
	Publish(ctx context.Context, event BookingEvent) error
	Close() error
}

// KafkaPublisher publishes booking events to a Kafka topic, keyed by
// booking ID so events for one booking stay ordered.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewKafkaPublisher creates a Kafka-backed publisher
func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish writes one booking event to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, event BookingEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.BookingID.String()),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write booking event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"type":       event.Type,
		"booking_id": event.BookingID,
	}).Debug("Booking event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops every event. Used when event publishing is disabled.
type NoopPublisher struct{}

// Publish discards the event.
func (NoopPublisher) Publish(ctx context.Context, event BookingEvent) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() error { return nil }
