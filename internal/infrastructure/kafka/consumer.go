package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/repository"
)

// Consumer drains the audit topic and persists events into audit_log. The
// audit trail is the system of record for gate attempts and admin actions.
type Consumer struct {
	reader    *kafka.Reader
	auditRepo repository.AuditRepository
}

func NewConsumer(brokers []string, groupID string, auditRepo repository.AuditRepository) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    AuditTopic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		auditRepo: auditRepo,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		var event models.AuditEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal audit event", "error", err)
			continue
		}

		if err := c.auditRepo.Insert(ctx, &event); err != nil {
			slog.Error("failed to persist audit event", "event_type", event.EventType, "error", err)
			continue
		}

		slog.Info("audit event persisted", "event_type", event.EventType, "actor_id", event.ActorID)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
