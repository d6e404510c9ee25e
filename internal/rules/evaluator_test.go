package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-alert-service/internal/models"
)

var today = time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func deadlineRule() models.Rule {
	return models.Rule{
		ID:                "rule-dp",
		Key:               "deadline_progress",
		Type:              models.RuleTypeDeadlineProgress,
		ThresholdDays:     7,
		ProgressThreshold: 80,
		Enabled:           true,
	}
}

func TestNormalizeProgress(t *testing.T) {
	assert.Equal(t, 80.0, NormalizeProgress(0.8))
	assert.Equal(t, 80.0, NormalizeProgress(80))
	assert.Equal(t, 100.0, NormalizeProgress(1))
	assert.Equal(t, 0.0, NormalizeProgress(0))
	assert.Equal(t, 33.33, NormalizeProgress(0.33333))
}

func TestDaysLeft(t *testing.T) {
	assert.Nil(t, DaysLeft(today, nil))
	assert.Equal(t, 5, *DaysLeft(today, date(2024, 6, 15)))
	assert.Equal(t, 0, *DaysLeft(today, date(2024, 6, 10)))
	assert.Equal(t, -1, *DaysLeft(today, date(2024, 6, 9)))

	endOfDay := time.Date(2024, 6, 11, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, *DaysLeft(today, &endOfDay), "partial days round up")
}

func TestDaysLeft_CalendarDatesInLocalZone(t *testing.T) {
	for _, name := range []string{"Asia/Shanghai", "America/Los_Angeles", "Pacific/Kiritimati"} {
		t.Run(name, func(t *testing.T) {
			loc, err := time.LoadLocation(name)
			require.NoError(t, err)

			for _, hour := range []int{0, 1, 10, 23} {
				now := time.Date(2024, 6, 10, hour, 30, 0, 0, loc)
				dueOn := func(s string) *time.Time {
					d, err := time.Parse("2006-01-02", s)
					require.NoError(t, err)
					return &d
				}
				assert.Equal(t, -1, *DaysLeft(now, dueOn("2024-06-09")), "due yesterday at %02d:30", hour)
				assert.Equal(t, 0, *DaysLeft(now, dueOn("2024-06-10")), "due today at %02d:30", hour)
				assert.Equal(t, 5, *DaysLeft(now, dueOn("2024-06-15")), "due in five days at %02d:30", hour)
			}
		})
	}
}

func TestEvaluate_OverdueInZoneEastOfUTC(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	now := time.Date(2024, 6, 10, 10, 0, 0, 0, loc)

	records := []models.TaskRecord{
		{ID: "yesterday", EndDate: date(2024, 6, 9)},
		{ID: "today", EndDate: date(2024, 6, 10)},
	}
	overdue := models.Rule{Key: "overdue", Type: models.RuleTypeOverdue, Enabled: true}

	res := Evaluate(now, []models.Rule{overdue}, records)
	require.Len(t, res, 1)
	require.Len(t, res[0].Matches, 1)
	assert.Equal(t, "yesterday", res[0].Matches[0].Record.ID)
	assert.Equal(t, -1, *res[0].Matches[0].DaysLeft)
}

func TestDeadlineProgressMatch(t *testing.T) {
	rec := models.TaskRecord{ID: "T1", EndDate: date(2024, 6, 15), Progress: 40}

	results := Evaluate(today, []models.Rule{deadlineRule()}, []models.TaskRecord{rec})
	require.Len(t, results, 1)
	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, "T1", results[0].Matches[0].Record.ID)
	assert.Equal(t, 5, *results[0].Matches[0].DaysLeft)
	assert.False(t, results[0].Matches[0].Overdue)
}

func TestDeadlineProgressBoundaries(t *testing.T) {
	rule := deadlineRule()
	tests := []struct {
		name string
		rec  models.TaskRecord
		want bool
	}{
		{"no end date", models.TaskRecord{ID: "a", Progress: 10}, false},
		{"beyond threshold", models.TaskRecord{ID: "b", EndDate: date(2024, 6, 18), Progress: 10}, false},
		{"exactly at threshold", models.TaskRecord{ID: "c", EndDate: date(2024, 6, 17), Progress: 10}, true},
		{"progress at threshold", models.TaskRecord{ID: "d", EndDate: date(2024, 6, 12), Progress: 80}, false},
		{"overdue and behind", models.TaskRecord{ID: "e", EndDate: date(2024, 6, 1), Progress: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches(rule, tt.rec, DaysLeft(today, tt.rec.EndDate))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMilestoneExclusion(t *testing.T) {
	rec := models.TaskRecord{ID: "M1", EndDate: date(2024, 6, 15), Progress: 40, Milestone: true}

	rule := deadlineRule()
	results := Evaluate(today, []models.Rule{rule}, []models.TaskRecord{rec})
	assert.Empty(t, results[0].Matches)

	rule.IncludeMilestones = true
	results = Evaluate(today, []models.Rule{rule}, []models.TaskRecord{rec})
	assert.Len(t, results[0].Matches, 1)
}

func TestOverdueStrictness(t *testing.T) {
	rule := models.Rule{ID: "rule-od", Type: models.RuleTypeOverdue, Enabled: true}

	dueToday := models.TaskRecord{ID: "today", EndDate: date(2024, 6, 10)}
	yesterday := models.TaskRecord{ID: "yesterday", EndDate: date(2024, 6, 9)}

	results := Evaluate(today, []models.Rule{rule}, []models.TaskRecord{dueToday, yesterday})
	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, "yesterday", results[0].Matches[0].Record.ID)
	assert.True(t, results[0].Matches[0].Overdue)
}

func TestBlockedMatch(t *testing.T) {
	rule := models.Rule{ID: "rule-bl", Type: models.RuleTypeBlocked, BlockedValue: "yes", Enabled: true}
	records := []models.TaskRecord{
		{ID: "b1", Blocked: "yes"},
		{ID: "b2", Blocked: "no"},
		{ID: "b3"},
	}
	results := Evaluate(today, []models.Rule{rule}, records)
	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, "b1", results[0].Matches[0].Record.ID)
	assert.Nil(t, results[0].Matches[0].DaysLeft)
}

func TestDisableSuppressesMatches(t *testing.T) {
	rec := models.TaskRecord{ID: "T1", EndDate: date(2024, 6, 15), Progress: 40}
	rule := deadlineRule()

	require.Len(t, Evaluate(today, []models.Rule{rule}, []models.TaskRecord{rec})[0].Matches, 1)

	rule.Enabled = false
	assert.Empty(t, Evaluate(today, []models.Rule{rule}, []models.TaskRecord{rec})[0].Matches)
}

func TestRecordMatchesSeveralRulesIndependently(t *testing.T) {
	rec := models.TaskRecord{ID: "X", EndDate: date(2024, 6, 5), Progress: 20, Blocked: "yes"}
	ruleSet := []models.Rule{
		deadlineRule(),
		{ID: "rule-bl", Type: models.RuleTypeBlocked, BlockedValue: "yes", Enabled: true},
		{ID: "rule-od", Type: models.RuleTypeOverdue, Enabled: true},
	}
	results := Evaluate(today, ruleSet, []models.TaskRecord{rec})
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Len(t, res.Matches, 1, res.Rule.ID)
	}
}

func TestMatchesOrderedByDaysLeftNullsLast(t *testing.T) {
	rule := models.Rule{ID: "rule-bl", Type: models.RuleTypeBlocked, BlockedValue: "yes", Enabled: true}
	records := []models.TaskRecord{
		{ID: "none", Blocked: "yes"},
		{ID: "late", Blocked: "yes", EndDate: date(2024, 6, 30)},
		{ID: "soon", Blocked: "yes", EndDate: date(2024, 6, 11)},
		{ID: "past", Blocked: "yes", EndDate: date(2024, 6, 1)},
	}
	results := Evaluate(today, []models.Rule{rule}, records)

	var ids []string
	for _, m := range results[0].Matches {
		ids = append(ids, m.Record.ID)
	}
	assert.Equal(t, []string{"past", "soon", "late", "none"}, ids)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	records := []models.TaskRecord{
		{ID: "a", EndDate: date(2024, 6, 12), Progress: 10},
		{ID: "b", EndDate: date(2024, 6, 12), Progress: 10},
	}
	first := Evaluate(today, []models.Rule{deadlineRule()}, records)
	second := Evaluate(today, []models.Rule{deadlineRule()}, records)
	assert.Equal(t, first, second)
}
