package providers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"project-alert-service/internal/models"
)

// Publisher writes one JSON event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// AlertEvent is the payload of the kafka channel.
type AlertEvent struct {
	ContactPointID string              `json:"contact_point_id"`
	Notification   models.Notification `json:"notification"`
}

// KafkaChannel publishes notifications as events, keyed by tenant.
type KafkaChannel struct {
	publisher    Publisher
	defaultTopic string
}

func NewKafkaChannel(publisher Publisher, defaultTopic string) *KafkaChannel {
	return &KafkaChannel{publisher: publisher, defaultTopic: defaultTopic}
}

// Send publishes n on the contact point's "topic", or the default topic.
func (k *KafkaChannel) Send(ctx context.Context, n models.Notification, cp models.ContactPoint) error {
	if k.publisher == nil {
		return fmt.Errorf("kafka is not configured")
	}
	topic := k.defaultTopic
	if v, ok := cp.Configuration["topic"].(string); ok && v != "" {
		topic = v
	}
	event := AlertEvent{ContactPointID: uuid.UUID(cp.ID).String(), Notification: n}
	return k.publisher.Publish(ctx, topic, n.TenantID, event)
}
