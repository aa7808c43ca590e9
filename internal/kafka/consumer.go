package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReconciliationConsumer feeds reconciliation incidents to a handler.
type ReconciliationConsumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

func NewReconciliationConsumer(brokers []string, groupID string, log *logger.Logger) *ReconciliationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    models.TopicInventoryReconciliation,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &ReconciliationConsumer{Reader: reader, Logger: log}
}

// Run blocks until ctx is done. A message is committed only after the
// handler succeeds; undecodable messages are committed and skipped.
func (c *ReconciliationConsumer) Run(ctx context.Context, handle func(context.Context, models.ReconciliationEvent) error) error {
	c.Logger.Info("KAFKA", fmt.Sprintf("Consuming %s", models.TopicInventoryReconciliation))
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var evt models.ReconciliationEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Skipping undecodable message at offset %d: %v", msg.Offset, err))
		} else if err := handle(ctx, evt); err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("Handler failed for ticket group %s: %v", evt.TicketGroupID, err))
			continue
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			c.Logger.Error("KAFKA", fmt.Sprintf("Commit failed at offset %d: %v", msg.Offset, err))
		}
	}
}

func (c *ReconciliationConsumer) Close() error {
	return c.Reader.Close()
}
