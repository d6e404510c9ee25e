package models

import "time"

// AlertRecord is a ledger entry: the first detection of a record under a rule.
type AlertRecord struct {
	ID               string     `json:"id"`
	RuleID           string     `json:"rule_id"`
	ExternalRecordID string     `json:"external_record_id"`
	TaskID           *string    `json:"task_id,omitempty"`
	TaskName         *string    `json:"task_name,omitempty"`
	Project          *string    `json:"project,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	Progress         float64    `json:"progress"`
	DaysLeft         *int       `json:"days_left,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Match is one record matched by a rule in a single evaluation.
type Match struct {
	Record   TaskRecord `json:"record"`
	DaysLeft *int       `json:"days_left,omitempty"`
	Overdue  bool       `json:"overdue"`
}

// AlertRecordFromMatch builds the ledger row for a first-time match.
func AlertRecordFromMatch(ruleID string, m Match) AlertRecord {
	rec := AlertRecord{
		RuleID:           ruleID,
		ExternalRecordID: m.Record.ID,
		EndDate:          m.Record.EndDate,
		Progress:         m.Record.Progress,
		DaysLeft:         m.DaysLeft,
	}
	if m.Record.ID != "" {
		id := m.Record.ID
		rec.TaskID = &id
	}
	if m.Record.Title != "" {
		name := m.Record.Title
		rec.TaskName = &name
	}
	if m.Record.Project != "" {
		project := m.Record.Project
		rec.Project = &project
	}
	return rec
}
