package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer  MessageWriter
	Logger  *logger.Logger
	Timeout time.Duration
}

// NewProducer returns a producer whose writer picks the topic per message.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Producer{Writer: writer, Logger: log, Timeout: 5 * time.Second}
}

// Publish writes one JSON message. Key keeps events for the same entity on
// one partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) PublishBookingEvent(ctx context.Context, topic string, evt models.BookingEvent) error {
	return p.Publish(ctx, topic, evt.BookingID, evt)
}

func (p *Producer) PublishCreditApplied(ctx context.Context, evt models.CreditAppliedEvent) error {
	return p.Publish(ctx, models.TopicCreditApplied, evt.EntryID, evt)
}

func (p *Producer) PublishReconciliation(ctx context.Context, evt models.ReconciliationEvent) error {
	return p.Publish(ctx, models.TopicInventoryReconciliation, evt.TicketGroupID, evt)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NopPublisher stands in when Kafka is disabled; events are only logged.
type NopPublisher struct {
	Logger *logger.Logger
}

func (n NopPublisher) PublishBookingEvent(ctx context.Context, topic string, evt models.BookingEvent) error {
	n.Logger.Debug("KAFKA", fmt.Sprintf("kafka disabled, dropping %s for booking %s", topic, evt.BookingID))
	return nil
}

func (n NopPublisher) PublishCreditApplied(ctx context.Context, evt models.CreditAppliedEvent) error {
	n.Logger.Debug("KAFKA", fmt.Sprintf("kafka disabled, dropping credit event %s", evt.EntryID))
	return nil
}

func (n NopPublisher) PublishReconciliation(ctx context.Context, evt models.ReconciliationEvent) error {
	n.Logger.Warn("KAFKA", fmt.Sprintf("kafka disabled, reconciliation for %s only logged", evt.TicketGroupID))
	return nil
}

func (n NopPublisher) Close() error { return nil }
