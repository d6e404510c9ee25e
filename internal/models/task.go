package models

import "time"

// TaskRecord is a normalized task-like record read from the task source.
// Optional fields are pointers; nothing downstream sees the raw payload.
type TaskRecord struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id,omitempty"`
	Title         string     `json:"title"`
	Status        string     `json:"status,omitempty"`
	Assignees     []string   `json:"assignees,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Progress      float64    `json:"progress"` // percentage, 0-100
	Project       string     `json:"project,omitempty"`
	Blocked       string     `json:"blocked,omitempty"`
	BlockedReason *string    `json:"blocked_reason,omitempty"`
	RiskLevel     *string    `json:"risk_level,omitempty"`
	Milestone     bool       `json:"milestone"`
}
