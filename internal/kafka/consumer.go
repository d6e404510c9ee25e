// Package kafka carries alert events and schedule configuration changes over
// Kafka so that every replica keeps the same timers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"

	"project-alert-service/internal/logging"
	"project-alert-service/internal/models"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ChangeHandler applies a configuration change made by another replica.
type ChangeHandler func(ctx context.Context, change models.ScheduleChange) error

// Consumer reads schedule changes and applies those from other replicas.
type Consumer struct {
	reader  messageReader
	origin  string
	handler ChangeHandler
	logger  *logging.Logger
}

// NewConsumer subscribes to topic with its own consumer group. Events whose
// origin equals origin are skipped.
func NewConsumer(brokers, topic, groupID, origin string, handler ChangeHandler, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     parseBrokers(brokers),
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{reader: reader, origin: origin, handler: handler, logger: logger}
}

// Start reads until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Schedule change consumer started")
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Info("Schedule change consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}
			c.handle(ctx, msg)
		}
	}()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var change models.ScheduleChange
	if err := json.Unmarshal(msg.Value, &change); err != nil {
		c.logger.Errorf("Unmarshal schedule change failed: %v", err)
		return
	}
	if change.Origin == c.origin {
		return
	}
	if err := c.handler(ctx, change); err != nil {
		c.logger.WithField("kind", change.Kind).Errorf("Failed to apply schedule change: %v", err)
		return
	}
	c.logger.WithField("kind", change.Kind).WithField("origin", change.Origin).Info("Applied schedule change")
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
