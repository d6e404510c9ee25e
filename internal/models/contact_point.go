package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery channel types a contact point may use.
const (
	ChannelTelegram  = "telegram"
	ChannelWebSocket = "websocket"
	ChannelKafka     = "kafka"
)

const (
	ContactPointActive  = "active"
	ContactPointDeleted = "deleted"
)

// ContactPoint is a tenant's delivery channel.
type ContactPoint struct {
	ID            [16]byte               `json:"id"`
	TenantID      string                 `json:"tenant_id"`
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	Configuration map[string]interface{} `json:"configuration"` // Stored as JSONB
	Status        string                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ContactPointCreate is the input for registering a delivery channel.
type ContactPointCreate struct {
	TenantID      string                 `json:"tenant_id" binding:"required"`
	Name          string                 `json:"name" binding:"required"`
	Type          string                 `json:"type" binding:"required,oneof=telegram websocket kafka"`
	Configuration map[string]interface{} `json:"configuration"`
}

func (cp ContactPoint) MarshalJSON() ([]byte, error) {
	type Alias ContactPoint
	return json.Marshal(&struct {
		ID string `json:"id"`
		*Alias
	}{
		ID:    uuid.UUID(cp.ID).String(),
		Alias: (*Alias)(&cp),
	})
}

func (cp *ContactPoint) UnmarshalJSON(data []byte) error {
	type Alias ContactPoint
	aux := &struct {
		ID string `json:"id"`
		*Alias
	}{
		Alias: (*Alias)(cp),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ID != "" {
		parsedID, err := uuid.Parse(aux.ID)
		if err != nil {
			return fmt.Errorf("invalid UUID format for ID: %w", err)
		}
		copy(cp.ID[:], parsedID[:])
	}
	return nil
}
