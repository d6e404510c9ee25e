package tasksource

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"project-alert-service/internal/models"
	"project-alert-service/internal/rules"
)

// rawTask is the loosely typed wire shape. Nothing outside this package sees it.
type rawTask struct {
	ID            json.RawMessage `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Title         string          `json:"title"`
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	Assignees     json.RawMessage `json:"assignees"`
	StartDate     json.RawMessage `json:"start_date"`
	EndDate       json.RawMessage `json:"end_date"`
	Progress      json.RawMessage `json:"progress"`
	Project       json.RawMessage `json:"project"`
	Blocked       json.RawMessage `json:"blocked"`
	BlockedReason string          `json:"blocked_reason"`
	RiskLevel     string          `json:"risk_level"`
	Milestone     json.RawMessage `json:"milestone"`
}

// normalize converts a raw item; records without an id are dropped.
func (r rawTask) normalize() (models.TaskRecord, bool) {
	id := scalarString(r.ID)
	if id == "" {
		return models.TaskRecord{}, false
	}

	rec := models.TaskRecord{
		ID:        id,
		TenantID:  r.TenantID,
		Title:     r.Title,
		Status:    r.Status,
		Assignees: parseAssignees(r.Assignees),
		StartDate: parseDate(r.StartDate),
		EndDate:   parseDate(r.EndDate),
		Progress:  rules.NormalizeProgress(parseNumber(r.Progress)),
		Project:   parseProject(r.Project),
		Blocked:   strings.TrimSpace(scalarString(r.Blocked)),
		Milestone: parseBool(r.Milestone),
	}
	if rec.Title == "" {
		rec.Title = r.Name
	}
	if r.BlockedReason != "" {
		reason := r.BlockedReason
		rec.BlockedReason = &reason
	}
	if r.RiskLevel != "" {
		risk := r.RiskLevel
		rec.RiskLevel = &risk
	}
	return rec, true
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// scalarString reads a JSON string, number or bool as text.
func scalarString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "yes"
		}
		return "no"
	}
	return ""
}

func parseNumber(raw json.RawMessage) float64 {
	s := scalarString(raw)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBool(raw json.RawMessage) bool {
	switch strings.ToLower(strings.TrimSpace(scalarString(raw))) {
	case "yes", "true", "1", "y":
		return true
	}
	return false
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate accepts RFC3339, plain dates and epoch milliseconds.
func parseDate(raw json.RawMessage) *time.Time {
	s := strings.TrimSpace(scalarString(raw))
	if s == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

type namedRef struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
}

func (n namedRef) label() string {
	switch {
	case n.Name != "":
		return n.Name
	case n.Title != "":
		return n.Title
	default:
		return n.Email
	}
}

// parseAssignees accepts a list of strings, a list of objects, or one string.
func parseAssignees(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := scalarString(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := scalarString(item); s != "" {
			out = append(out, s)
			continue
		}
		var ref namedRef
		if err := json.Unmarshal(item, &ref); err == nil && ref.label() != "" {
			out = append(out, ref.label())
		}
	}
	return out
}

// parseProject accepts a project name or an object with a name.
func parseProject(raw json.RawMessage) string {
	if s := scalarString(raw); s != "" {
		return s
	}
	if isNull(raw) {
		return ""
	}
	var ref namedRef
	if err := json.Unmarshal(raw, &ref); err == nil {
		return ref.label()
	}
	return ""
}
