package schedule

import (
	"context"
	"errors"
	"strings"
	"time"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/models"
)

// OverrideWriter is the write side of the override store.
type OverrideWriter interface {
	UpsertScheduleOverride(ctx context.Context, o models.ScheduleOverride) error
	DeleteScheduleOverride(ctx context.Context, tenantID, scheduleID string) error
	SetSetting(ctx context.Context, key, value string) error
}

// ChangePublisher broadcasts configuration changes to other replicas.
type ChangePublisher interface {
	PublishScheduleChange(ctx context.Context, change models.ScheduleChange) error
}

// Manager is the schedule administration surface. Every mutation validates
// before persisting, then invalidates the resolver and rebuilds the timers.
type Manager struct {
	store     OverrideWriter
	resolver  *Resolver
	registry  *Registry
	publisher ChangePublisher
	origin    string
	logger    *logging.Logger
}

// NewManager wires the administration surface. publisher may be nil.
func NewManager(store OverrideWriter, resolver *Resolver, registry *Registry, publisher ChangePublisher, origin string, logger *logging.Logger) *Manager {
	return &Manager{
		store:     store,
		resolver:  resolver,
		registry:  registry,
		publisher: publisher,
		origin:    origin,
		logger:    logger,
	}
}

// ListEffective resolves every catalog schedule, for tenantID when given.
func (m *Manager) ListEffective(ctx context.Context, tenantID string) ([]models.EffectiveSchedule, error) {
	defs := m.resolver.Catalog().List()
	out := make([]models.EffectiveSchedule, 0, len(defs))
	for _, def := range defs {
		eff, err := m.resolver.Resolve(ctx, def.ID, tenantID)
		if err != nil {
			return nil, err
		}
		out = append(out, eff)
	}
	return out, nil
}

// SetOverride stores a tenant-specific cron and optional timezone.
func (m *Manager) SetOverride(ctx context.Context, scheduleID, tenantID, cronExpr, timezone string) (models.EffectiveSchedule, error) {
	if err := m.requireSchedule(scheduleID); err != nil {
		return models.EffectiveSchedule{}, err
	}
	if strings.TrimSpace(tenantID) == "" {
		return models.EffectiveSchedule{}, apperr.Configf("tenant_id is required")
	}
	if err := ValidateCron(cronExpr); err != nil {
		return models.EffectiveSchedule{}, err
	}
	if err := ValidateTimezone(timezone); err != nil {
		return models.EffectiveSchedule{}, err
	}

	err := m.store.UpsertScheduleOverride(ctx, models.ScheduleOverride{
		TenantID:   tenantID,
		ScheduleID: scheduleID,
		Cron:       normalizeCron(cronExpr),
		Timezone:   timezone,
	})
	if err != nil {
		return models.EffectiveSchedule{}, apperr.Wrap(apperr.ErrPersistence, err)
	}

	m.applied(ctx, models.ScheduleChange{Kind: models.ScheduleChangeOverride, ScheduleID: scheduleID, TenantID: tenantID})
	return m.resolver.Resolve(ctx, scheduleID, tenantID)
}

// RemoveOverride deletes a tenant override; the tenant falls back to the
// system-scope timer.
func (m *Manager) RemoveOverride(ctx context.Context, scheduleID, tenantID string) (models.EffectiveSchedule, error) {
	if err := m.requireSchedule(scheduleID); err != nil {
		return models.EffectiveSchedule{}, err
	}
	if strings.TrimSpace(tenantID) == "" {
		return models.EffectiveSchedule{}, apperr.Configf("tenant_id is required")
	}
	if err := m.store.DeleteScheduleOverride(ctx, tenantID, scheduleID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.EffectiveSchedule{}, err
		}
		return models.EffectiveSchedule{}, apperr.Wrap(apperr.ErrPersistence, err)
	}

	m.applied(ctx, models.ScheduleChange{Kind: models.ScheduleChangeOverrideRemove, ScheduleID: scheduleID, TenantID: tenantID})
	return m.resolver.Resolve(ctx, scheduleID, tenantID)
}

// SetGlobalCron sets the system-level cron of a schedule.
func (m *Manager) SetGlobalCron(ctx context.Context, scheduleID, cronExpr string) (models.EffectiveSchedule, error) {
	if err := m.requireSchedule(scheduleID); err != nil {
		return models.EffectiveSchedule{}, err
	}
	if err := ValidateCron(cronExpr); err != nil {
		return models.EffectiveSchedule{}, err
	}
	if err := m.store.SetSetting(ctx, SettingCron(scheduleID), normalizeCron(cronExpr)); err != nil {
		return models.EffectiveSchedule{}, apperr.Wrap(apperr.ErrPersistence, err)
	}

	m.applied(ctx, models.ScheduleChange{Kind: models.ScheduleChangeGlobalCron, ScheduleID: scheduleID})
	return m.resolver.Resolve(ctx, scheduleID, "")
}

// SetGlobalTimezone sets the system-level timezone for every schedule.
func (m *Manager) SetGlobalTimezone(ctx context.Context, timezone string) error {
	if strings.TrimSpace(timezone) == "" {
		return apperr.Configf("timezone is required")
	}
	if err := ValidateTimezone(timezone); err != nil {
		return err
	}
	if err := m.store.SetSetting(ctx, SettingTimezone, timezone); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err)
	}

	m.applied(ctx, models.ScheduleChange{Kind: models.ScheduleChangeGlobalTimezone})
	return nil
}

// ContactPointsChanged rebuilds after a tenant gained or lost a channel.
func (m *Manager) ContactPointsChanged(ctx context.Context, tenantID string) {
	m.applied(ctx, models.ScheduleChange{Kind: models.ScheduleChangeContactPoints, TenantID: tenantID})
}

// Reload invalidates cached configuration and rebuilds the timers. It is the
// entry point for changes made by another replica.
func (m *Manager) Reload(ctx context.Context) error {
	m.resolver.Invalidate()
	return m.registry.Rebuild(ctx)
}

// applied runs after a successful write. The write is already durable, so a
// rebuild or publish failure is logged rather than returned.
func (m *Manager) applied(ctx context.Context, change models.ScheduleChange) {
	log := m.logger.WithField("kind", change.Kind).WithField("schedule_id", change.ScheduleID).WithField("tenant_id", change.TenantID)

	if err := m.Reload(ctx); err != nil {
		log.Errorf("Failed to rebuild timers: %v", err)
	}

	if m.publisher == nil {
		return
	}
	change.Origin = m.origin
	change.At = time.Now().UTC()
	if err := m.publisher.PublishScheduleChange(ctx, change); err != nil {
		log.Warnf("Failed to publish schedule change: %v", err)
	}
}

func (m *Manager) requireSchedule(scheduleID string) error {
	if _, ok := m.resolver.Catalog().Lookup(scheduleID); !ok {
		return apperr.NotFoundf("unknown schedule %q", scheduleID)
	}
	return nil
}

func normalizeCron(expr string) string {
	return strings.Join(strings.Fields(expr), " ")
}
