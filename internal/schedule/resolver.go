package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/metrics"
	"project-alert-service/internal/models"
)

// System-level setting keys.
const (
	SettingTimezone   = "schedule.timezone"
	settingCronPrefix = "schedule.cron."
)

// SettingCron is the system-level cron key for a schedule id.
func SettingCron(scheduleID string) string {
	return settingCronPrefix + scheduleID
}

// ErrUnknownSchedule is returned for ids missing from the catalog.
var ErrUnknownSchedule = fmt.Errorf("%w: unknown schedule", apperr.ErrNotFound)

// OverrideReader is the read side of the override store.
type OverrideReader interface {
	ListScheduleOverrides(ctx context.Context) ([]models.ScheduleOverride, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

const (
	overridesCacheKey = "overrides"
	settingCachePref  = "setting:"
)

type setting struct {
	value string
	ok    bool
}

// Resolver computes effective schedules. Store reads are cached until
// Invalidate is called or the TTL expires.
type Resolver struct {
	catalog   *Catalog
	store     OverrideReader
	defaultTZ string
	cache     *cache.Cache
	metrics   *metrics.Metrics
}

// NewResolver returns a resolver; defaultTZ applies when neither the tenant
// nor the system settings name a timezone.
func NewResolver(catalog *Catalog, store OverrideReader, defaultTZ string, ttl time.Duration, m *metrics.Metrics) *Resolver {
	return &Resolver{
		catalog:   catalog,
		store:     store,
		defaultTZ: defaultTZ,
		cache:     cache.New(ttl, ttl*2),
		metrics:   m,
	}
}

// Invalidate drops every cached read.
func (r *Resolver) Invalidate() {
	r.cache.Flush()
}

// Catalog returns the catalog the resolver resolves against.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve returns the effective schedule for scheduleID. With a tenant that
// has an override, the override wins; otherwise the system setting, then the
// catalog default.
func (r *Resolver) Resolve(ctx context.Context, scheduleID, tenantID string) (models.EffectiveSchedule, error) {
	def, ok := r.catalog.Lookup(scheduleID)
	if !ok {
		return models.EffectiveSchedule{}, fmt.Errorf("%w %q", ErrUnknownSchedule, scheduleID)
	}

	eff := models.EffectiveSchedule{
		ScheduleID: def.ID,
		Name:       def.Name,
		TenantID:   tenantID,
		JobIDs:     append([]string(nil), def.JobIDs...),
		Cron:       def.DefaultCron,
		Source:     models.ScheduleSourceDefault,
	}

	tz, err := r.systemTimezone(ctx)
	if err != nil {
		return models.EffectiveSchedule{}, err
	}
	eff.Timezone = tz

	if tenantID != "" {
		byTenant, err := r.overrides(ctx)
		if err != nil {
			return models.EffectiveSchedule{}, err
		}
		if o, ok := byTenant[tenantID][scheduleID]; ok {
			eff.Cron = o.Cron
			if o.Timezone != "" {
				eff.Timezone = o.Timezone
			}
			eff.Source = models.ScheduleSourceTenant
			return eff, nil
		}
	}

	s, err := r.setting(ctx, SettingCron(scheduleID))
	if err != nil {
		return models.EffectiveSchedule{}, err
	}
	if s.ok && s.value != "" {
		eff.Cron = s.value
		eff.Source = models.ScheduleSourceSystem
	}
	return eff, nil
}

// Overrides returns the override rows whose schedule is still in the catalog,
// grouped by tenant then schedule id. Stale rows are skipped.
func (r *Resolver) Overrides(ctx context.Context) (map[string]map[string]models.ScheduleOverride, error) {
	return r.overrides(ctx)
}

// HasOverride reports whether tenantID overrides scheduleID.
func (r *Resolver) HasOverride(ctx context.Context, scheduleID, tenantID string) (bool, error) {
	byTenant, err := r.overrides(ctx)
	if err != nil {
		return false, err
	}
	_, ok := byTenant[tenantID][scheduleID]
	return ok, nil
}

func (r *Resolver) overrides(ctx context.Context) (map[string]map[string]models.ScheduleOverride, error) {
	if v, ok := r.cache.Get(overridesCacheKey); ok {
		r.observe("hit")
		return v.(map[string]map[string]models.ScheduleOverride), nil
	}
	r.observe("miss")

	rows, err := r.store.ListScheduleOverrides(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	byTenant := make(map[string]map[string]models.ScheduleOverride)
	for _, o := range rows {
		if _, known := r.catalog.Lookup(o.ScheduleID); !known {
			continue
		}
		if byTenant[o.TenantID] == nil {
			byTenant[o.TenantID] = make(map[string]models.ScheduleOverride)
		}
		byTenant[o.TenantID][o.ScheduleID] = o
	}
	r.cache.SetDefault(overridesCacheKey, byTenant)
	return byTenant, nil
}

// SystemTimezone returns the stored system timezone, else the default.
func (r *Resolver) SystemTimezone(ctx context.Context) (string, error) {
	return r.systemTimezone(ctx)
}

func (r *Resolver) systemTimezone(ctx context.Context) (string, error) {
	s, err := r.setting(ctx, SettingTimezone)
	if err != nil {
		return "", err
	}
	if s.ok && s.value != "" {
		return s.value, nil
	}
	return r.defaultTZ, nil
}

func (r *Resolver) setting(ctx context.Context, key string) (setting, error) {
	if v, ok := r.cache.Get(settingCachePref + key); ok {
		r.observe("hit")
		return v.(setting), nil
	}
	r.observe("miss")

	value, ok, err := r.store.GetSetting(ctx, key)
	if err != nil {
		return setting{}, apperr.Wrap(apperr.ErrPersistence, err)
	}
	s := setting{value: value, ok: ok}
	r.cache.SetDefault(settingCachePref+key, s)
	return s, nil
}

func (r *Resolver) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.ResolverCacheEvents.WithLabelValues(outcome).Inc()
	}
}
