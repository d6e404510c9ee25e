package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/models"
	"project-alert-service/internal/rules"
	"project-alert-service/internal/schedule"
)

// PreviewScheduleID marks dry-run audit rows.
const PreviewScheduleID = "preview"

// PreviewResult is what a firing would have computed and sent.
type PreviewResult struct {
	TenantID string                `json:"tenant_id,omitempty"`
	Results  []rules.Result        `json:"results"`
	Messages []models.Notification `json:"messages"`
}

// Preview evaluates ruleKeys (all rules when empty) for tenantID without
// touching the ledger or the sink. Every current match is rendered, whether or
// not it was notified before.
func (r *Runner) Preview(ctx context.Context, tenantID string, ruleKeys []string) (PreviewResult, error) {
	started := r.now().UTC()

	ruleSet, err := r.previewRules(ctx, ruleKeys)
	if err != nil {
		return PreviewResult{}, err
	}

	results, err := r.evaluate(ctx, tenantID, ruleSet, r.clock(r.systemTimezone(ctx)))
	if err != nil {
		return PreviewResult{}, err
	}

	out := PreviewResult{TenantID: tenantID, Results: results, Messages: []models.Notification{}}
	matches := 0
	for _, res := range results {
		matches += len(res.Matches)
		for _, m := range res.Matches {
			out.Messages = append(out.Messages, Render(tenantID, res.Rule, m, started))
		}
	}

	scope := schedule.ScopeSystem
	if tenantID != "" {
		scope = schedule.ScopeTenant
	}
	run := models.JobRun{
		ID:         uuid.NewString(),
		ScheduleID: PreviewScheduleID,
		Scope:      string(scope),
		TenantID:   tenantID,
		Trigger:    schedule.TriggerManual,
		Status:     models.RunStatusDryRun,
		Summary:    fmt.Sprintf("rules=%d matches=%d", len(ruleSet), matches),
		StartedAt:  started,
		FinishedAt: r.now().UTC(),
	}
	if err := r.runs.CreateJobRun(ctx, run); err != nil {
		r.logger.Errorf("Failed to write preview run: %v", err)
	}
	return out, nil
}

func (r *Runner) previewRules(ctx context.Context, keys []string) ([]models.Rule, error) {
	if err := r.rules.EnsureDefaultRules(ctx); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	all, err := r.rules.ListRules(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	if len(keys) == 0 {
		return all, nil
	}

	byKey := make(map[string]models.Rule, len(all))
	for _, rule := range all {
		byKey[rule.Key] = rule
	}
	out := make([]models.Rule, 0, len(keys))
	for _, key := range keys {
		rule, ok := byKey[key]
		if !ok {
			return nil, apperr.NotFoundf("unknown rule key %q", key)
		}
		out = append(out, rule)
	}
	return out, nil
}

// systemTimezone returns the stored system timezone, or "" for the default.
func (r *Runner) systemTimezone(ctx context.Context) string {
	if r.zones == nil {
		return ""
	}
	tz, err := r.zones.SystemTimezone(ctx)
	if err != nil {
		r.logger.Warnf("Failed to read system timezone, using %s: %v", r.location, err)
		return ""
	}
	return tz
}
