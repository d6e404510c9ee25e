package runner

import (
	"fmt"
	"strings"
	"time"

	"project-alert-service/internal/models"
)

// Render builds the notification for one new match.
func Render(tenantID string, rule models.Rule, m models.Match, now time.Time) models.Notification {
	rec := m.Record
	title := rec.Title
	if title == "" {
		title = rec.ID
	}

	n := models.Notification{
		TenantID:  tenantID,
		Severity:  severity(rule, m),
		RuleKey:   rule.Key,
		RecordID:  rec.ID,
		CreatedAt: now,
	}
	switch rule.Type {
	case models.RuleTypeDeadlineProgress:
		n.Title = "Deadline approaching: " + title
	case models.RuleTypeBlocked:
		n.Title = "Task blocked: " + title
	case models.RuleTypeOverdue:
		n.Title = "Task overdue: " + title
	default:
		n.Title = rule.Name + ": " + title
	}

	var lines []string
	if rec.Project != "" {
		lines = append(lines, "Project: "+rec.Project)
	}
	if rec.EndDate != nil {
		lines = append(lines, "Due: "+rec.EndDate.Format("2006-01-02")+dueSuffix(m.DaysLeft))
	}
	lines = append(lines, fmt.Sprintf("Progress: %.0f%%", rec.Progress))
	if rec.Status != "" {
		lines = append(lines, "Status: "+rec.Status)
	}
	if len(rec.Assignees) > 0 {
		lines = append(lines, "Assignees: "+strings.Join(rec.Assignees, ", "))
	}
	if rule.Type == models.RuleTypeBlocked && rec.BlockedReason != nil && *rec.BlockedReason != "" {
		lines = append(lines, "Reason: "+*rec.BlockedReason)
	}
	n.Body = strings.Join(lines, "\n")
	return n
}

func dueSuffix(daysLeft *int) string {
	if daysLeft == nil {
		return ""
	}
	switch d := *daysLeft; {
	case d < -1:
		return fmt.Sprintf(" (%d days overdue)", -d)
	case d == -1:
		return " (1 day overdue)"
	case d == 0:
		return " (due today)"
	case d == 1:
		return " (1 day left)"
	default:
		return fmt.Sprintf(" (%d days left)", d)
	}
}

func severity(rule models.Rule, m models.Match) string {
	switch {
	case m.Overdue:
		return models.SeverityCritical
	case rule.Type == models.RuleTypeBlocked:
		return models.SeverityWarning
	case m.DaysLeft != nil && *m.DaysLeft <= 1:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
