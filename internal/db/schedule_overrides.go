package db

import (
	"context"
	"fmt"
	"time"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/models"
)

// UpsertScheduleOverride stores a tenant's cron/timezone for one schedule.
func (d *DB) UpsertScheduleOverride(ctx context.Context, o models.ScheduleOverride) error {
	query := `
	INSERT INTO schedule_overrides (tenant_id, schedule_id, cron, timezone, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (tenant_id, schedule_id)
	DO UPDATE SET cron = EXCLUDED.cron, timezone = EXCLUDED.timezone, updated_at = EXCLUDED.updated_at`

	_, err := d.Pool.Exec(ctx, query, o.TenantID, o.ScheduleID, o.Cron, o.Timezone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert schedule override: %w", err)
	}
	return nil
}

// DeleteScheduleOverride removes a tenant override.
func (d *DB) DeleteScheduleOverride(ctx context.Context, tenantID, scheduleID string) error {
	tag, err := d.Pool.Exec(ctx,
		`DELETE FROM schedule_overrides WHERE tenant_id = $1 AND schedule_id = $2`,
		tenantID, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("no override for schedule %q and tenant %q", scheduleID, tenantID)
	}
	return nil
}

// ListScheduleOverrides returns every override row, including stale ones.
func (d *DB) ListScheduleOverrides(ctx context.Context) ([]models.ScheduleOverride, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT tenant_id, schedule_id, cron, timezone, updated_at
	FROM schedule_overrides
	ORDER BY tenant_id, schedule_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule overrides: %w", err)
	}
	defer rows.Close()

	var list []models.ScheduleOverride
	for rows.Next() {
		var o models.ScheduleOverride
		if err := rows.Scan(&o.TenantID, &o.ScheduleID, &o.Cron, &o.Timezone, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule override: %w", err)
		}
		list = append(list, o)
	}
	return list, rows.Err()
}
