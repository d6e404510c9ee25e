package rules

import (
	"fmt"
	"strings"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/models"
)

// DefaultBlockedValue is the task source's "yes" in its blocked column.
const DefaultBlockedValue = "yes"

// Defaults returns the rules created on first access, keyed by rule key.
func Defaults() []models.Rule {
	return []models.Rule{
		{
			Key:               string(models.RuleTypeDeadlineProgress),
			Type:              models.RuleTypeDeadlineProgress,
			Name:              "Deadline approaching with low progress",
			ThresholdDays:     7,
			ProgressThreshold: 80,
			IncludeMilestones: false,
			BlockedValue:      DefaultBlockedValue,
			AutoNotify:        true,
			Enabled:           true,
		},
		{
			Key:               string(models.RuleTypeBlocked),
			Type:              models.RuleTypeBlocked,
			Name:              "Task blocked",
			IncludeMilestones: true,
			BlockedValue:      DefaultBlockedValue,
			AutoNotify:        true,
			Enabled:           true,
		},
		{
			Key:               string(models.RuleTypeOverdue),
			Type:              models.RuleTypeOverdue,
			Name:              "Task overdue",
			IncludeMilestones: true,
			BlockedValue:      DefaultBlockedValue,
			AutoNotify:        true,
			Enabled:           true,
		},
	}
}

// DefaultFor returns the default rule for key.
func DefaultFor(key string) (models.Rule, bool) {
	for _, r := range Defaults() {
		if r.Key == key {
			return r, true
		}
	}
	return models.Rule{}, false
}

// FieldChange describes one effective field change produced by Apply.
type FieldChange struct {
	Field string
	From  string
	To    string
}

// Note renders the change for the change log.
func (c FieldChange) Note() string {
	return fmt.Sprintf("%s: %s -> %s", c.Field, c.From, c.To)
}

// ValidateUpdate rejects out-of-range values before anything is persisted.
func ValidateUpdate(u models.RuleUpdate) error {
	if u.ThresholdDays != nil && *u.ThresholdDays < 0 {
		return apperr.Configf("threshold_days must be >= 0, got %d", *u.ThresholdDays)
	}
	if u.ProgressThreshold != nil && (*u.ProgressThreshold < 0 || *u.ProgressThreshold > 100) {
		return apperr.Configf("progress_threshold must be within [0,100], got %g", *u.ProgressThreshold)
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return apperr.Configf("name must not be empty")
	}
	return nil
}

// Apply returns rule with u applied and the list of fields that actually changed.
func Apply(rule models.Rule, u models.RuleUpdate) (models.Rule, []FieldChange) {
	var changes []FieldChange
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name != rule.Name {
			changes = append(changes, FieldChange{"name", rule.Name, name})
			rule.Name = name
		}
	}
	if u.ThresholdDays != nil && *u.ThresholdDays != rule.ThresholdDays {
		changes = append(changes, FieldChange{"threshold_days", fmt.Sprint(rule.ThresholdDays), fmt.Sprint(*u.ThresholdDays)})
		rule.ThresholdDays = *u.ThresholdDays
	}
	if u.ProgressThreshold != nil && *u.ProgressThreshold != rule.ProgressThreshold {
		changes = append(changes, FieldChange{"progress_threshold", fmt.Sprint(rule.ProgressThreshold), fmt.Sprint(*u.ProgressThreshold)})
		rule.ProgressThreshold = *u.ProgressThreshold
	}
	if u.IncludeMilestones != nil && *u.IncludeMilestones != rule.IncludeMilestones {
		changes = append(changes, FieldChange{"include_milestones", fmt.Sprint(rule.IncludeMilestones), fmt.Sprint(*u.IncludeMilestones)})
		rule.IncludeMilestones = *u.IncludeMilestones
	}
	if u.BlockedValue != nil && *u.BlockedValue != rule.BlockedValue {
		changes = append(changes, FieldChange{"blocked_value", rule.BlockedValue, *u.BlockedValue})
		rule.BlockedValue = *u.BlockedValue
	}
	if u.AutoNotify != nil && *u.AutoNotify != rule.AutoNotify {
		changes = append(changes, FieldChange{"auto_notify", fmt.Sprint(rule.AutoNotify), fmt.Sprint(*u.AutoNotify)})
		rule.AutoNotify = *u.AutoNotify
	}
	if u.Enabled != nil && *u.Enabled != rule.Enabled {
		changes = append(changes, FieldChange{"enabled", fmt.Sprint(rule.Enabled), fmt.Sprint(*u.Enabled)})
		rule.Enabled = *u.Enabled
	}
	return rule, changes
}
