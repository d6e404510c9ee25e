package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/metrics"
	"project-alert-service/internal/models"
)

func newTestRegistry(t *testing.T, store *fakeStore, runner *fakeRunner) (*Registry, *cron.Cron) {
	t.Helper()
	c := cron.New()
	c.Start()
	t.Cleanup(func() { <-c.Stop().Done() })

	resolver := newTestResolver(store)
	return NewRegistry(c, resolver, store, runner, logging.NewDiscard(), metrics.NewNop()), c
}

func systemKey(id string) TimerKey { return TimerKey{Scope: ScopeSystem, ScheduleID: id} }

func tenantKey(id, tenant string) TimerKey {
	return TimerKey{Scope: ScopeTenant, ScheduleID: id, TenantID: tenant}
}

func TestRebuild_SystemTimersPerCatalogEntry(t *testing.T) {
	reg, _ := newTestRegistry(t, newFakeStore(), &fakeRunner{})

	require.NoError(t, reg.Rebuild(context.Background()))
	assert.Equal(t, []TimerKey{systemKey("overdue-sweep"), systemKey("risk-daily")}, reg.Keys())
}

func TestRebuild_RepeatedLeavesOneTimerPerKey(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.activeTenants = []string{"t1", "t2"}
	require.NoError(t, store.UpsertScheduleOverride(ctx, models.ScheduleOverride{TenantID: "t1", ScheduleID: "risk-daily", Cron: "0 7 * * *"}))
	reg, c := newTestRegistry(t, store, &fakeRunner{})

	for i := 0; i < 5; i++ {
		require.NoError(t, reg.Rebuild(ctx))
		assert.Len(t, reg.Keys(), 3)
		assert.Len(t, c.Entries(), 3)
	}
	assert.Contains(t, reg.Keys(), tenantKey("risk-daily", "t1"))
}

func TestRebuild_ConcurrentCallsDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.activeTenants = []string{"t1"}
	require.NoError(t, store.UpsertScheduleOverride(ctx, models.ScheduleOverride{TenantID: "t1", ScheduleID: "overdue-sweep", Cron: "0 7 * * *"}))
	reg, c := newTestRegistry(t, store, &fakeRunner{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Rebuild(ctx))
		}()
	}
	wg.Wait()

	assert.Len(t, reg.Keys(), 3)
	assert.Len(t, c.Entries(), 3)
}

func TestRebuild_LeavesUnrelatedEntries(t *testing.T) {
	reg, c := newTestRegistry(t, newFakeStore(), &fakeRunner{})
	_, err := c.AddFunc("@every 1h", func() {})
	require.NoError(t, err)

	require.NoError(t, reg.Rebuild(context.Background()))
	require.NoError(t, reg.Rebuild(context.Background()))

	assert.Len(t, c.Entries(), 3)
	assert.Len(t, reg.Keys(), 2)
}

func TestRebuild_TenantWithoutChannelGetsNoTimer(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.activeTenants = []string{"t1"}
	require.NoError(t, store.UpsertScheduleOverride(ctx, models.ScheduleOverride{TenantID: "t2", ScheduleID: "risk-daily", Cron: "0 7 * * *"}))
	reg, _ := newTestRegistry(t, store, &fakeRunner{})

	require.NoError(t, reg.Rebuild(ctx))
	assert.NotContains(t, reg.Keys(), tenantKey("risk-daily", "t2"))
	assert.Len(t, reg.Keys(), 2)
}

func TestRebuild_StaleOverrideIgnored(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.activeTenants = []string{"t1"}
	require.NoError(t, store.UpsertScheduleOverride(ctx, models.ScheduleOverride{TenantID: "t1", ScheduleID: "retired", Cron: "0 7 * * *"}))
	reg, _ := newTestRegistry(t, store, &fakeRunner{})

	require.NoError(t, reg.Rebuild(ctx))
	assert.Len(t, reg.Keys(), 2)
}

func TestRebuild_InvalidStoredCronSkipsOnlyThatTimer(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	require.NoError(t, store.SetSetting(ctx, SettingCron("risk-daily"), "not a cron"))
	reg, _ := newTestRegistry(t, store, &fakeRunner{})

	require.NoError(t, reg.Rebuild(ctx))
	assert.Equal(t, []TimerKey{systemKey("overdue-sweep")}, reg.Keys())
}

func TestRebuild_PlanFailureKeepsExistingTimers(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	reg, c := newTestRegistry(t, store, &fakeRunner{})
	require.NoError(t, reg.Rebuild(ctx))

	store.failTenants = true
	require.Error(t, reg.Rebuild(ctx))
	assert.Len(t, reg.Keys(), 2)
	assert.Len(t, c.Entries(), 2)
}

func TestTimers_ReportNextActivation(t *testing.T) {
	reg, _ := newTestRegistry(t, newFakeStore(), &fakeRunner{})
	require.NoError(t, reg.Rebuild(context.Background()))

	require.Eventually(t, func() bool {
		for _, info := range reg.Timers() {
			if info.Next.IsZero() {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestFire_SystemScopeSkipsOverriddenTenants(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.activeTenants = []string{"t1", "t2", "t3"}
	require.NoError(t, store.UpsertScheduleOverride(ctx, models.ScheduleOverride{TenantID: "t2", ScheduleID: "risk-daily", Cron: "0 7 * * *"}))
	runner := &fakeRunner{}
	reg, _ := newTestRegistry(t, store, runner)
	require.NoError(t, reg.Rebuild(ctx))

	reg.fire(systemKey("risk-daily"))
	reg.fire(tenantKey("risk-daily", "t2"))

	firings := runner.calls()
	require.Len(t, firings, 2)
	assert.Equal(t, []string{"t1", "t3"}, firings[0].TenantIDs)
	assert.Equal(t, TriggerSchedule, firings[0].Trigger)
	assert.Equal(t, []string{"t2"}, firings[1].TenantIDs)
	assert.Equal(t, "0 7 * * *", firings[1].Schedule.Cron)
}

func TestFire_RecoversFromPanicAndKeepsTimer(t *testing.T) {
	runner := &fakeRunner{panicWith: "boom"}
	reg, _ := newTestRegistry(t, newFakeStore(), runner)
	require.NoError(t, reg.Rebuild(context.Background()))

	assert.NotPanics(t, func() { reg.fire(systemKey("risk-daily")) })
	assert.Contains(t, reg.Keys(), systemKey("risk-daily"))
}

func TestFire_ErrorKeepsTimer(t *testing.T) {
	runner := &fakeRunner{err: errors.New("source down")}
	reg, _ := newTestRegistry(t, newFakeStore(), runner)
	require.NoError(t, reg.Rebuild(context.Background()))

	reg.fire(systemKey("overdue-sweep"))
	assert.Len(t, runner.calls(), 1)
	assert.Contains(t, reg.Keys(), systemKey("overdue-sweep"))
}

func TestTrigger(t *testing.T) {
	runner := &fakeRunner{}
	reg, _ := newTestRegistry(t, newFakeStore(), runner)

	run, err := reg.Trigger(context.Background(), tenantKey("overdue-sweep", "t5"))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	require.Len(t, runner.calls(), 1)
	assert.Equal(t, TriggerManual, runner.calls()[0].Trigger)

	_, err = reg.Trigger(context.Background(), systemKey("nope"))
	assert.ErrorIs(t, err, ErrUnknownSchedule)

	_, err = reg.Trigger(context.Background(), TimerKey{Scope: ScopeTenant, ScheduleID: "risk-daily"})
	assert.Error(t, err)
}

func TestTrigger_SurvivesCallerCancellation(t *testing.T) {
	runner := &fakeRunner{}
	store := newFakeStore()
	store.activeTenants = []string{"t1"}
	reg, _ := newTestRegistry(t, store, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := reg.Trigger(ctx, systemKey("risk-daily"))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.ctxErrs, 1)
	assert.NoError(t, runner.ctxErrs[0])
	assert.WithinDuration(t, time.Now().Add(ManualFiringTimeout), runner.deadlines[0], time.Minute)
}

type fakeStore struct {
	mu            sync.Mutex
	overrides     map[string]models.ScheduleOverride
	settings      map[string]string
	activeTenants []string
	readCount     int
	writes        int
	failReads     bool
	failTenants   bool
	failDeletes   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		overrides: map[string]models.ScheduleOverride{},
		settings:  map[string]string{},
	}
}

func (f *fakeStore) ListScheduleOverrides(context.Context) ([]models.ScheduleOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCount++
	if f.failReads {
		return nil, errors.New("db down")
	}
	out := make([]models.ScheduleOverride, 0, len(f.overrides))
	for _, o := range f.overrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID+out[i].ScheduleID < out[j].TenantID+out[j].ScheduleID })
	return out, nil
}

func (f *fakeStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCount++
	if f.failReads {
		return "", false, errors.New("db down")
	}
	v, ok := f.settings[key]
	return v, ok, nil
}

func (f *fakeStore) UpsertScheduleOverride(_ context.Context, o models.ScheduleOverride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.overrides[o.TenantID+"/"+o.ScheduleID] = o
	return nil
}

func (f *fakeStore) DeleteScheduleOverride(_ context.Context, tenantID, scheduleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeletes {
		return errors.New("db down")
	}
	key := tenantID + "/" + scheduleID
	if _, ok := f.overrides[key]; !ok {
		return apperr.NotFoundf("no override for schedule %q and tenant %q", scheduleID, tenantID)
	}
	f.writes++
	delete(f.overrides, key)
	return nil
}

func (f *fakeStore) SetSetting(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.settings[key] = value
	return nil
}

func (f *fakeStore) ListActiveTenants(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTenants {
		return nil, errors.New("db down")
	}
	return append([]string(nil), f.activeTenants...), nil
}

func (f *fakeStore) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCount
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type fakeRunner struct {
	mu        sync.Mutex
	firings   []Firing
	ctxErrs   []error
	deadlines []time.Time
	err       error
	panicWith string
}

func (f *fakeRunner) Run(ctx context.Context, firing Firing) (models.JobRun, error) {
	f.mu.Lock()
	f.firings = append(f.firings, firing)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	deadline, _ := ctx.Deadline()
	f.deadlines = append(f.deadlines, deadline)
	f.mu.Unlock()
	if f.panicWith != "" {
		panic(f.panicWith)
	}
	if f.err != nil {
		return models.JobRun{Status: models.RunStatusFailed}, f.err
	}
	return models.JobRun{Status: models.RunStatusSuccess}, nil
}

func (f *fakeRunner) calls() []Firing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Firing(nil), f.firings...)
}
