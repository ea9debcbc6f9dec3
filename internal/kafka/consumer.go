package kafka

import (
	"context"
	"encoding/json"
	"log"

	"ticket-runners/internal/models"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start consumes account-registered events until the context is cancelled.
// Each event triggers ticket reconciliation for the new account.
func (c *Consumer) Start(ctx context.Context, handler func(account models.Account)) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading message: %v", err)
			continue
		}

		var account models.Account
		if err := json.Unmarshal(msg.Value, &account); err != nil {
			log.Printf("Failed to unmarshal account event: %v", err)
			continue
		}

		handler(account)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
