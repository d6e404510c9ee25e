package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/metrics"
	"project-alert-service/internal/models"
)

// Scope says whether a timer serves every tenant or one tenant.
type Scope string

const (
	ScopeSystem Scope = "system"
	ScopeTenant Scope = "tenant"
)

// Firing triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// ManualFiringTimeout bounds a firing started through Trigger.
const ManualFiringTimeout = 10 * time.Minute

// TimerKey identifies one live timer. TenantID is empty for system scope.
type TimerKey struct {
	Scope      Scope  `json:"scope"`
	ScheduleID string `json:"schedule_id"`
	TenantID   string `json:"tenant_id,omitempty"`
}

func (k TimerKey) String() string {
	if k.Scope == ScopeTenant {
		return fmt.Sprintf("%s/%s/%s", k.Scope, k.ScheduleID, k.TenantID)
	}
	return fmt.Sprintf("%s/%s", k.Scope, k.ScheduleID)
}

// Firing is one invocation of a timer, with its targets computed at fire time.
type Firing struct {
	Key       TimerKey
	Schedule  models.EffectiveSchedule
	TenantIDs []string
	Trigger   string
}

// Runner executes a firing.
type Runner interface {
	Run(ctx context.Context, f Firing) (models.JobRun, error)
}

// TenantLister returns tenants with at least one active delivery channel.
type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]string, error)
}

// TimerInfo describes a live timer for the admin listing.
type TimerInfo struct {
	Key      TimerKey  `json:"key"`
	Cron     string    `json:"cron"`
	Timezone string    `json:"timezone"`
	Next     time.Time `json:"next"`
}

type timer struct {
	id       cron.EntryID
	schedule models.EffectiveSchedule
}

type plannedTimer struct {
	key      TimerKey
	schedule models.EffectiveSchedule
	sched    cron.Schedule
}

// Registry keeps the live timer set consistent with persisted configuration.
// It only ever removes cron entries it created, so the cron instance may be
// shared with other jobs.
type Registry struct {
	cron     *cron.Cron
	resolver *Resolver
	tenants  TenantLister
	runner   Runner
	logger   *logging.Logger
	metrics  *metrics.Metrics

	rebuildMu sync.Mutex

	mu     sync.RWMutex
	timers map[TimerKey]timer
}

// NewRegistry returns an empty registry. Call Rebuild to create timers.
func NewRegistry(c *cron.Cron, resolver *Resolver, tenants TenantLister, runner Runner, logger *logging.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		cron:     c,
		resolver: resolver,
		tenants:  tenants,
		runner:   runner,
		logger:   logger,
		metrics:  m,
		timers:   make(map[TimerKey]timer),
	}
}

// Rebuild replaces every timer this registry owns with the set implied by the
// current catalog, overrides and active tenants. Calls are serialized; the new
// plan is computed before any timer is stopped, so a store failure leaves the
// previous timers running.
func (r *Registry) Rebuild(ctx context.Context) error {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	plan, err := r.plan(ctx)
	if err != nil {
		r.countRebuild("error")
		return fmt.Errorf("failed to plan timers: %w", err)
	}

	r.mu.Lock()
	for _, t := range r.timers {
		r.cron.Remove(t.id)
	}
	r.timers = make(map[TimerKey]timer, len(plan))
	for _, p := range plan {
		key := p.key
		id := r.cron.Schedule(p.sched, cron.FuncJob(func() { r.fire(key) }))
		r.timers[key] = timer{id: id, schedule: p.schedule}
	}
	count := len(r.timers)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveTimers.Set(float64(count))
	}
	r.countRebuild("success")
	r.logger.WithField("timers", count).Info("Schedule timers rebuilt")
	return nil
}

// plan computes the desired timer set without touching the cron instance.
func (r *Registry) plan(ctx context.Context) ([]plannedTimer, error) {
	tenants, err := r.tenants.ListActiveTenants(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	active := make(map[string]struct{}, len(tenants))
	for _, t := range tenants {
		active[t] = struct{}{}
	}

	overrides, err := r.resolver.Overrides(ctx)
	if err != nil {
		return nil, err
	}

	var plan []plannedTimer
	add := func(key TimerKey) error {
		eff, err := r.resolver.Resolve(ctx, key.ScheduleID, key.TenantID)
		if errors.Is(err, ErrUnknownSchedule) {
			return nil
		}
		if err != nil {
			return err
		}
		sched, err := parseSchedule(eff.Cron, eff.Timezone)
		if err != nil {
			r.logger.WithField("timer", key.String()).
				Errorf("Skipping timer with invalid stored schedule %q (%s): %v", eff.Cron, eff.Timezone, err)
			return nil
		}
		plan = append(plan, plannedTimer{key: key, schedule: eff, sched: sched})
		return nil
	}

	for _, def := range r.resolver.Catalog().List() {
		if err := add(TimerKey{Scope: ScopeSystem, ScheduleID: def.ID}); err != nil {
			return nil, err
		}
	}

	tenantIDs := make([]string, 0, len(overrides))
	for tenantID := range overrides {
		tenantIDs = append(tenantIDs, tenantID)
	}
	sort.Strings(tenantIDs)
	for _, tenantID := range tenantIDs {
		if _, ok := active[tenantID]; !ok {
			continue
		}
		scheduleIDs := make([]string, 0, len(overrides[tenantID]))
		for id := range overrides[tenantID] {
			scheduleIDs = append(scheduleIDs, id)
		}
		sort.Strings(scheduleIDs)
		for _, scheduleID := range scheduleIDs {
			if err := add(TimerKey{Scope: ScopeTenant, ScheduleID: scheduleID, TenantID: tenantID}); err != nil {
				return nil, err
			}
		}
	}
	return plan, nil
}

// Keys returns the keys of every live timer, ordered.
func (r *Registry) Keys() []TimerKey {
	r.mu.RLock()
	keys := make([]TimerKey, 0, len(r.timers))
	for k := range r.timers {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Timers describes every live timer with its next activation.
func (r *Registry) Timers() []TimerInfo {
	r.mu.RLock()
	out := make([]TimerInfo, 0, len(r.timers))
	for k, t := range r.timers {
		out = append(out, TimerInfo{
			Key:      k,
			Cron:     t.schedule.Cron,
			Timezone: t.schedule.Timezone,
			Next:     r.cron.Entry(t.id).Next,
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Trigger runs key's jobs immediately, whether or not a timer exists for it.
// The firing is detached from ctx cancellation and bounded by
// ManualFiringTimeout, so a caller going away cannot stop it between ledger
// writes and sends.
func (r *Registry) Trigger(ctx context.Context, key TimerKey) (models.JobRun, error) {
	if key.Scope == ScopeTenant && key.TenantID == "" {
		return models.JobRun{}, apperr.Configf("tenant_id is required for a tenant firing")
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ManualFiringTimeout)
	defer cancel()

	f, err := r.firing(runCtx, key, TriggerManual)
	if err != nil {
		return models.JobRun{}, err
	}
	return r.runner.Run(runCtx, f)
}

// firing resolves the schedule and targets of key as of now. System scope
// targets every tenant with an active channel and no override for the schedule.
func (r *Registry) firing(ctx context.Context, key TimerKey, trigger string) (Firing, error) {
	eff, err := r.resolver.Resolve(ctx, key.ScheduleID, key.TenantID)
	if err != nil {
		return Firing{}, err
	}
	f := Firing{Key: key, Schedule: eff, Trigger: trigger}

	if key.Scope == ScopeTenant {
		f.TenantIDs = []string{key.TenantID}
		return f, nil
	}

	tenants, err := r.tenants.ListActiveTenants(ctx)
	if err != nil {
		return Firing{}, apperr.Wrap(apperr.ErrPersistence, err)
	}
	for _, tenantID := range tenants {
		overridden, err := r.resolver.HasOverride(ctx, key.ScheduleID, tenantID)
		if err != nil {
			return Firing{}, err
		}
		if !overridden {
			f.TenantIDs = append(f.TenantIDs, tenantID)
		}
	}
	return f, nil
}

// fire is the cron callback. Failures and panics are logged; the timer stays.
func (r *Registry) fire(key TimerKey) {
	log := r.logger.WithField("timer", key.String())
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Firing panicked: %v", rec)
		}
	}()

	ctx := context.Background()
	f, err := r.firing(ctx, key, TriggerSchedule)
	if err != nil {
		log.Errorf("Failed to prepare firing: %v", err)
		return
	}
	run, err := r.runner.Run(ctx, f)
	if err != nil {
		log.Errorf("Firing failed: %v", err)
		return
	}
	log.WithField("status", run.Status).Debug("Firing finished")
}

func (r *Registry) countRebuild(result string) {
	if r.metrics != nil {
		r.metrics.RebuildsTotal.WithLabelValues(result).Inc()
	}
}
