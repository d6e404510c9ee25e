package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"project-alert-service/internal/models"
)

// CreateJobRun writes one audit row for a firing.
func (d *DB) CreateJobRun(ctx context.Context, run models.JobRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := d.Pool.Exec(ctx, `
	INSERT INTO job_runs (id, schedule_id, scope, tenant_id, trigger, status, summary, error, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.ScheduleID, run.Scope, run.TenantID, run.Trigger, run.Status,
		run.Summary, run.Error, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to create job run: %w", err)
	}
	return nil
}

// ListJobRuns returns the most recent firings first.
func (d *DB) ListJobRuns(ctx context.Context, limit int) ([]models.JobRun, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, schedule_id, scope, tenant_id, trigger, status, summary, error, started_at, finished_at
	FROM job_runs
	ORDER BY started_at DESC
	LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var list []models.JobRun
	for rows.Next() {
		var r models.JobRun
		err := rows.Scan(&r.ID, &r.ScheduleID, &r.Scope, &r.TenantID, &r.Trigger, &r.Status,
			&r.Summary, &r.Error, &r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}
