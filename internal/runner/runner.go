// Package runner executes timer firings: evaluate, dedupe, notify, audit.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/metrics"
	"project-alert-service/internal/models"
	"project-alert-service/internal/rules"
	"project-alert-service/internal/schedule"
)

// RuleStore provides the rule set read once per firing.
type RuleStore interface {
	EnsureDefaultRules(ctx context.Context) error
	ListRules(ctx context.Context) ([]models.Rule, error)
}

// TaskSource fetches the current task snapshot.
type TaskSource interface {
	Fetch(ctx context.Context, tenantID string) ([]models.TaskRecord, error)
}

// Ledger returns the matches not notified before.
type Ledger interface {
	Sync(ctx context.Context, rule models.Rule, matches []models.Match) ([]models.Match, error)
}

// Sink delivers one notification.
type Sink interface {
	Send(ctx context.Context, n models.Notification) error
}

// RunStore persists the audit row of a firing.
type RunStore interface {
	CreateJobRun(ctx context.Context, run models.JobRun) error
}

// ZoneSource reports the system-level timezone used when a caller has no
// schedule of its own.
type ZoneSource interface {
	SystemTimezone(ctx context.Context) (string, error)
}

// Runner is invoked once per firing.
type Runner struct {
	rules        RuleStore
	source       TaskSource
	ledger       Ledger
	sink         Sink
	runs         RunStore
	logger       *logging.Logger
	metrics      *metrics.Metrics
	fetchTimeout time.Duration
	now          func() time.Time
	location     *time.Location
	zones        ZoneSource
}

// New returns a Runner. fetchTimeout bounds each task source call.
func New(ruleStore RuleStore, source TaskSource, ledger Ledger, sink Sink, runs RunStore, fetchTimeout time.Duration, logger *logging.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		rules:        ruleStore,
		source:       source,
		ledger:       ledger,
		sink:         sink,
		runs:         runs,
		logger:       logger,
		metrics:      m,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
		location:     time.UTC,
	}
}

// WithLocation sets the zone "today" is taken in when a firing carries none.
func (r *Runner) WithLocation(loc *time.Location) *Runner {
	if loc != nil {
		r.location = loc
	}
	return r
}

// WithZoneSource makes previews follow the stored system timezone.
func (r *Runner) WithZoneSource(z ZoneSource) *Runner {
	r.zones = z
	return r
}

// clock returns the current time in tz, or in the default location when tz is
// empty or unknown.
func (r *Runner) clock(tz string) time.Time {
	loc := r.location
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			r.logger.WithField("timezone", tz).Warnf("Unknown timezone, using %s: %v", loc, err)
		} else {
			loc = l
		}
	}
	return r.now().In(loc)
}

// tally accumulates the outcome of one firing across its tenants.
type tally struct {
	tenants        int
	skippedTenants []string
	matches        int
	held           int // matches of rules with auto-notify off
	fresh          int
	sent           int
	sendFailures   int
	failures       []error // make the firing failed
	sinkErrors     []error // recorded, firing still succeeds
}

func (t *tally) summary() string {
	s := fmt.Sprintf("tenants=%d matches=%d new=%d sent=%d", t.tenants, t.matches, t.fresh, t.sent)
	if t.held > 0 {
		s += fmt.Sprintf(" held=%d", t.held)
	}
	if t.sendFailures > 0 {
		s += fmt.Sprintf(" send_failures=%d", t.sendFailures)
	}
	if len(t.skippedTenants) > 0 {
		s += " skipped_tenants=" + strings.Join(t.skippedTenants, ",")
	}
	return s
}

// Run executes the jobs of f for each target tenant and writes one audit row.
// A notification failure never aborts the remaining alerts.
func (r *Runner) Run(ctx context.Context, f schedule.Firing) (models.JobRun, error) {
	started := r.now().UTC()
	run := models.JobRun{
		ID:         uuid.NewString(),
		ScheduleID: f.Key.ScheduleID,
		Scope:      string(f.Key.Scope),
		TenantID:   f.Key.TenantID,
		Trigger:    f.Trigger,
		StartedAt:  started,
	}
	log := r.logger.WithField("schedule_id", f.Key.ScheduleID).WithField("scope", f.Key.Scope).WithField("tenant_id", f.Key.TenantID)

	var t tally
	now := r.clock(f.Schedule.Timezone)
	ruleSet, err := r.loadRules(ctx, f.Schedule.JobIDs)
	switch {
	case err != nil:
		t.failures = append(t.failures, err)
	case len(f.TenantIDs) == 0:
		run.Status = models.RunStatusSkipped
		run.Summary = "no tenants with an active delivery channel"
	default:
		for _, tenantID := range f.TenantIDs {
			r.runTenant(ctx, tenantID, ruleSet, now, &t)
		}
	}

	if run.Status == "" {
		run.Summary = t.summary()
		switch {
		case len(t.failures) > 0:
			run.Status = models.RunStatusFailed
		case t.tenants == 0 && len(t.skippedTenants) > 0:
			run.Status = models.RunStatusSkipped
		default:
			run.Status = models.RunStatusSuccess
		}
	}
	runErr := errors.Join(t.failures...)
	if detail := errors.Join(append(append([]error{}, t.failures...), t.sinkErrors...)...); detail != nil {
		run.Error = detail.Error()
	}

	run.FinishedAt = r.now().UTC()
	if r.metrics != nil {
		r.metrics.ObserveFiring(run.ScheduleID, run.Scope, run.Status, run.FinishedAt.Sub(started))
	}
	if err := r.runs.CreateJobRun(ctx, run); err != nil {
		log.Errorf("Failed to write job run: %v", err)
		runErr = errors.Join(runErr, apperr.Wrap(apperr.ErrPersistence, err))
	}

	log.WithField("status", run.Status).Infof("Firing finished: %s", run.Summary)
	return run, runErr
}

// runTenant processes one tenant. Ledger sync for a rule completes before any
// of that rule's notifications are sent.
func (r *Runner) runTenant(ctx context.Context, tenantID string, ruleSet []models.Rule, now time.Time, t *tally) {
	log := r.logger.WithField("tenant_id", tenantID)

	results, err := r.evaluate(ctx, tenantID, ruleSet, now)
	if err != nil {
		if errors.Is(err, apperr.ErrTransientSource) {
			log.Warnf("Task source unavailable, skipping tenant: %v", err)
			t.skippedTenants = append(t.skippedTenants, tenantID)
			return
		}
		t.failures = append(t.failures, fmt.Errorf("tenant %s: %w", tenantID, err))
		return
	}
	t.tenants++

	for _, res := range results {
		t.matches += len(res.Matches)
		if !res.Rule.AutoNotify {
			t.held += len(res.Matches)
			continue
		}
		if len(res.Matches) == 0 {
			continue
		}

		fresh, err := r.ledger.Sync(ctx, res.Rule, res.Matches)
		if err != nil {
			t.failures = append(t.failures, fmt.Errorf("tenant %s rule %s: %w", tenantID, res.Rule.Key, err))
		}
		t.fresh += len(fresh)
		if r.metrics != nil && len(fresh) > 0 {
			r.metrics.NewAlertsTotal.WithLabelValues(res.Rule.Key).Add(float64(len(fresh)))
		}

		for _, m := range fresh {
			n := Render(tenantID, res.Rule, m, r.now().UTC())
			if err := r.sink.Send(ctx, n); err != nil {
				log.WithField("rule_key", res.Rule.Key).WithField("record_id", m.Record.ID).
					Errorf("Failed to send notification: %v", err)
				t.sendFailures++
				t.sinkErrors = append(t.sinkErrors, fmt.Errorf("tenant %s record %s: %w", tenantID, m.Record.ID, err))
				continue
			}
			t.sent++
		}
	}
}

// evaluate fetches the tenant snapshot and runs the rules with today taken
// from now. It is the only match computation, shared by firings and previews.
func (r *Runner) evaluate(ctx context.Context, tenantID string, ruleSet []models.Rule, now time.Time) ([]rules.Result, error) {
	fetchCtx := ctx
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}
	records, err := r.source.Fetch(fetchCtx, tenantID)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperr.ErrTransientSource) {
			err = apperr.Wrap(apperr.ErrTransientSource, err)
		}
		return nil, err
	}
	return rules.Evaluate(now, ruleSet, records), nil
}

// loadRules ensures the defaults exist and returns the rules named by keys,
// in key order. Unknown keys are skipped.
func (r *Runner) loadRules(ctx context.Context, keys []string) ([]models.Rule, error) {
	if err := r.rules.EnsureDefaultRules(ctx); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	all, err := r.rules.ListRules(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	byKey := make(map[string]models.Rule, len(all))
	for _, rule := range all {
		byKey[rule.Key] = rule
	}

	out := make([]models.Rule, 0, len(keys))
	for _, key := range keys {
		if rule, ok := byKey[key]; ok {
			out = append(out, rule)
			continue
		}
		r.logger.WithField("rule_key", key).Warn("Schedule references an unknown rule, skipping")
	}
	return out, nil
}
