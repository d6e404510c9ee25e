package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"project-alert-service/internal/models"
)

// InsertAlertIfAbsent records the first detection of (rule_id, external_record_id).
// It reports false when the pair already exists; the unique constraint makes
// concurrent inserts of the same pair safe.
func (d *DB) InsertAlertIfAbsent(ctx context.Context, alert models.AlertRecord) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO alert_records (
		id, rule_id, external_record_id, task_id, task_name, project, end_date, progress, days_left, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
	)
	ON CONFLICT (rule_id, external_record_id) DO NOTHING`

	tag, err := d.Pool.Exec(ctx, query,
		alert.ID,
		alert.RuleID,
		alert.ExternalRecordID,
		alert.TaskID,
		alert.TaskName,
		alert.Project,
		alert.EndDate,
		alert.Progress,
		alert.DaysLeft,
		alert.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAlertRecords returns ledger rows, newest first, optionally for one rule.
func (d *DB) ListAlertRecords(ctx context.Context, ruleID string, limit int) ([]models.AlertRecord, error) {
	query := `
	SELECT id, rule_id, external_record_id, task_id, task_name, project, end_date, progress, days_left, created_at
	FROM alert_records`

	args := []interface{}{}
	if ruleID != "" {
		query += " WHERE rule_id = $1 ORDER BY created_at DESC LIMIT $2"
		args = append(args, ruleID, limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	defer rows.Close()

	var list []models.AlertRecord
	for rows.Next() {
		var alert models.AlertRecord
		err := rows.Scan(
			&alert.ID,
			&alert.RuleID,
			&alert.ExternalRecordID,
			&alert.TaskID,
			&alert.TaskName,
			&alert.Project,
			&alert.EndDate,
			&alert.Progress,
			&alert.DaysLeft,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, alert)
	}

	return list, rows.Err()
}
