// Package rules holds the pure risk predicates evaluated on every firing.
package rules

import (
	"math"
	"sort"
	"time"

	"project-alert-service/internal/models"
)

const day = 24 * time.Hour

// NormalizeProgress accepts a [0,1] fraction or a [0,100] percentage and
// returns a percentage rounded to two decimals.
func NormalizeProgress(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	if raw <= 1 {
		raw *= 100
	}
	return math.Round(raw*100) / 100
}

// DaysLeft returns the days from today, taken in now's location, to end. An
// end at UTC midnight is a plain calendar date and is compared by date; any
// other instant gives ceil((end - today) / 1 day). Nil when end is nil.
func DaysLeft(now time.Time, end *time.Time) *int {
	if end == nil {
		return nil
	}
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var n int
	if u := end.UTC(); isDateOnly(u) {
		due := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
		n = int(math.Round(float64(due.Sub(today)) / float64(day)))
	} else {
		n = int(math.Ceil(float64(end.Sub(today)) / float64(day)))
	}
	return &n
}

func isDateOnly(u time.Time) bool {
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

// Result holds the matches of one rule.
type Result struct {
	Rule    models.Rule    `json:"rule"`
	Matches []models.Match `json:"matches"`
}

// Evaluate runs every rule against records and returns one Result per rule,
// in rule order. It is pure: same inputs, same output.
func Evaluate(now time.Time, ruleSet []models.Rule, records []models.TaskRecord) []Result {
	daysLeft := make([]*int, len(records))
	for i := range records {
		daysLeft[i] = DaysLeft(now, records[i].EndDate)
	}

	out := make([]Result, 0, len(ruleSet))
	for _, rule := range ruleSet {
		res := Result{Rule: rule, Matches: []models.Match{}}
		for i, rec := range records {
			if !Matches(rule, rec, daysLeft[i]) {
				continue
			}
			res.Matches = append(res.Matches, models.Match{
				Record:   rec,
				DaysLeft: daysLeft[i],
				Overdue:  daysLeft[i] != nil && *daysLeft[i] < 0,
			})
		}
		sortMatches(res.Matches)
		out = append(out, res)
	}
	return out
}

// Matches reports whether rec satisfies rule given its precomputed days left.
func Matches(rule models.Rule, rec models.TaskRecord, daysLeft *int) bool {
	if !rule.Enabled {
		return false
	}
	switch rule.Type {
	case models.RuleTypeDeadlineProgress:
		if daysLeft == nil {
			return false
		}
		if *daysLeft > rule.ThresholdDays {
			return false
		}
		if rec.Progress >= rule.ProgressThreshold {
			return false
		}
		return rule.IncludeMilestones || !rec.Milestone
	case models.RuleTypeBlocked:
		return rec.Blocked != "" && rec.Blocked == rule.BlockedValue
	case models.RuleTypeOverdue:
		return daysLeft != nil && *daysLeft < 0
	default:
		return false
	}
}

// sortMatches orders by ascending days left, nulls last, then record id.
func sortMatches(ms []models.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i].DaysLeft, ms[j].DaysLeft
		switch {
		case a == nil && b == nil:
			return ms[i].Record.ID < ms[j].Record.ID
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return ms[i].Record.ID < ms[j].Record.ID
		}
	})
}
