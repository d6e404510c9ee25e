package models

import "time"

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification is the payload handed to the notification sink.
type Notification struct {
	TenantID  string    `json:"tenant_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  string    `json:"severity"`
	RuleKey   string    `json:"rule_key,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
