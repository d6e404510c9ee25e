package models

import "time"

const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusSkipped = "skipped"
	RunStatusDryRun  = "dry-run"
)

// JobRun is the audit row written once per firing.
type JobRun struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	Scope      string    `json:"scope"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Summary    string    `json:"summary"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
