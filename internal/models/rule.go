package models

import "time"

// RuleType selects the predicate a rule evaluates.
type RuleType string

const (
	RuleTypeDeadlineProgress RuleType = "deadline_progress"
	RuleTypeBlocked          RuleType = "blocked"
	RuleTypeOverdue          RuleType = "overdue"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeDeadlineProgress, RuleTypeBlocked, RuleTypeOverdue:
		return true
	}
	return false
}

// Rule is a persisted alert rule. Exactly one rule exists per Key.
type Rule struct {
	ID                string    `json:"id"`
	Key               string    `json:"key"`
	Type              RuleType  `json:"type"`
	Name              string    `json:"name"`
	ThresholdDays     int       `json:"threshold_days"`
	ProgressThreshold float64   `json:"progress_threshold"`
	IncludeMilestones bool      `json:"include_milestones"`
	BlockedValue      string    `json:"blocked_value"`
	AutoNotify        bool      `json:"auto_notify"`
	Enabled           bool      `json:"enabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RuleUpdate carries the mutable rule fields; nil means unchanged.
type RuleUpdate struct {
	Name              *string  `json:"name,omitempty"`
	ThresholdDays     *int     `json:"threshold_days,omitempty"`
	ProgressThreshold *float64 `json:"progress_threshold,omitempty"`
	IncludeMilestones *bool    `json:"include_milestones,omitempty"`
	BlockedValue      *string  `json:"blocked_value,omitempty"`
	AutoNotify        *bool    `json:"auto_notify,omitempty"`
	Enabled           *bool    `json:"enabled,omitempty"`
	Note              string   `json:"note,omitempty"`
}

// RuleChange is one immutable change-log entry.
type RuleChange struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	Action    string    `json:"action"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
