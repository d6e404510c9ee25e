package models

import "time"

// ScheduleDefinition is a code-defined schedule in the catalog.
type ScheduleDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	JobIDs      []string `json:"job_ids"`
	DefaultCron string   `json:"default_cron"`
}

// ScheduleOverride is a tenant's persisted cron/timezone for one schedule.
type ScheduleOverride struct {
	TenantID   string    `json:"tenant_id"`
	ScheduleID string    `json:"schedule_id"`
	Cron       string    `json:"cron"`
	Timezone   string    `json:"timezone,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Where an effective schedule value came from.
const (
	ScheduleSourceTenant  = "tenant_override"
	ScheduleSourceSystem  = "system"
	ScheduleSourceDefault = "default"
)

// EffectiveSchedule is the resolved schedule. Never persisted.
type EffectiveSchedule struct {
	ScheduleID string   `json:"schedule_id"`
	Name       string   `json:"name"`
	TenantID   string   `json:"tenant_id,omitempty"`
	Cron       string   `json:"cron"`
	Timezone   string   `json:"timezone"`
	JobIDs     []string `json:"job_ids"`
	Source     string   `json:"source"`
}

// Kinds of schedule configuration change broadcast to other replicas.
const (
	ScheduleChangeOverride       = "override_set"
	ScheduleChangeOverrideRemove = "override_removed"
	ScheduleChangeGlobalCron     = "global_cron"
	ScheduleChangeGlobalTimezone = "global_timezone"
	ScheduleChangeContactPoints  = "contact_points"
)

// ScheduleChange tells every replica to rebuild its timers.
type ScheduleChange struct {
	Kind       string    `json:"kind"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Origin     string    `json:"origin"`
	At         time.Time `json:"at"`
}
