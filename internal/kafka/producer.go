package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"project-alert-service/internal/logging"
	"project-alert-service/internal/models"
)

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON events. The topic is chosen per message.
type Producer struct {
	writer      messageWriter
	configTopic string
	logger      *logging.Logger
}

// NewProducer creates a producer for a comma-separated broker list.
func NewProducer(brokers, configTopic string, logger *logging.Logger) (*Producer, error) {
	brokerList := parseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, fmt.Errorf("brokers cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerList...),
		Balancer:               &kafka.Hash{}, // key-based partitioning
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	logger.Infof("Kafka producer configured for brokers %v", brokerList)

	return &Producer{writer: writer, configTopic: configTopic, logger: logger}, nil
}

// Publish marshals payload and writes it to topic, keyed by key.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", topic, err)
	}
	p.logger.Debugf("Published event to %s (key=%s)", topic, key)
	return nil
}

// PublishScheduleChange broadcasts a schedule change on the config topic.
func (p *Producer) PublishScheduleChange(ctx context.Context, change models.ScheduleChange) error {
	key := change.ScheduleID
	if key == "" {
		key = change.Kind
	}
	return p.Publish(ctx, p.configTopic, key, change)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

func parseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
