package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/models"
	"project-alert-service/internal/rules"
)

const ruleColumns = `id, key, type, name, threshold_days, progress_threshold, include_milestones,
	blocked_value, auto_notify, enabled, created_at, updated_at`

func scanRule(row pgx.Row) (models.Rule, error) {
	var r models.Rule
	var ruleType string
	err := row.Scan(
		&r.ID,
		&r.Key,
		&ruleType,
		&r.Name,
		&r.ThresholdDays,
		&r.ProgressThreshold,
		&r.IncludeMilestones,
		&r.BlockedValue,
		&r.AutoNotify,
		&r.Enabled,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	r.Type = models.RuleType(ruleType)
	return r, err
}

func (d *DB) insertRuleIfMissing(ctx context.Context, r models.Rule) error {
	query := `
	INSERT INTO alert_rules (
		id, key, type, name, threshold_days, progress_threshold, include_milestones,
		blocked_value, auto_notify, enabled, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	ON CONFLICT (key) DO NOTHING`

	_, err := d.Pool.Exec(ctx, query,
		uuid.NewString(),
		r.Key,
		string(r.Type),
		r.Name,
		r.ThresholdDays,
		r.ProgressThreshold,
		r.IncludeMilestones,
		r.BlockedValue,
		r.AutoNotify,
		r.Enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule %s: %w", r.Key, err)
	}
	return nil
}

// EnsureDefaultRules creates every default rule that does not exist yet.
func (d *DB) EnsureDefaultRules(ctx context.Context) error {
	for _, r := range rules.Defaults() {
		if err := d.insertRuleIfMissing(ctx, r); err != nil {
			return apperr.Wrap(apperr.ErrPersistence, err)
		}
	}
	return nil
}

// GetOrCreateRule returns the rule for key, creating it from defaults on first access.
func (d *DB) GetOrCreateRule(ctx context.Context, key string) (models.Rule, error) {
	r, err := scanRule(d.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE key = $1`, key))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Rule{}, fmt.Errorf("failed to get rule %s: %w", key, err)
	}

	def, ok := rules.DefaultFor(key)
	if !ok {
		return models.Rule{}, apperr.NotFoundf("unknown rule key %q", key)
	}
	if err := d.insertRuleIfMissing(ctx, def); err != nil {
		return models.Rule{}, apperr.Wrap(apperr.ErrPersistence, err)
	}

	r, err = scanRule(d.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE key = $1`, key))
	if err != nil {
		return models.Rule{}, fmt.Errorf("failed to get rule %s: %w", key, err)
	}
	return r, nil
}

// ListRules returns all rules ordered by key.
func (d *DB) ListRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := d.Pool.Query(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var list []models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// UpdateRule applies u to the rule identified by key and appends one change-log
// entry per field that actually changed. Validation happens before any write.
func (d *DB) UpdateRule(ctx context.Context, key string, u models.RuleUpdate) (models.Rule, []models.RuleChange, error) {
	if err := rules.ValidateUpdate(u); err != nil {
		return models.Rule{}, nil, err
	}
	if _, err := d.GetOrCreateRule(ctx, key); err != nil {
		return models.Rule{}, nil, err
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return models.Rule{}, nil, fmt.Errorf("failed to begin rule update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanRule(tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE key = $1 FOR UPDATE`, key))
	if err != nil {
		return models.Rule{}, nil, fmt.Errorf("failed to lock rule %s: %w", key, err)
	}

	updated, fieldChanges := rules.Apply(current, u)
	if len(fieldChanges) == 0 {
		return current, nil, tx.Commit(ctx)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
	UPDATE alert_rules
	SET name = $1,
	    threshold_days = $2,
	    progress_threshold = $3,
	    include_milestones = $4,
	    blocked_value = $5,
	    auto_notify = $6,
	    enabled = $7,
	    updated_at = $8
	WHERE id = $9`,
		updated.Name,
		updated.ThresholdDays,
		updated.ProgressThreshold,
		updated.IncludeMilestones,
		updated.BlockedValue,
		updated.AutoNotify,
		updated.Enabled,
		now,
		updated.ID,
	)
	if err != nil {
		return models.Rule{}, nil, fmt.Errorf("failed to update rule %s: %w", key, err)
	}
	updated.UpdatedAt = now

	changes := make([]models.RuleChange, 0, len(fieldChanges))
	for _, fc := range fieldChanges {
		note := fc.Note()
		if u.Note != "" {
			note += " (" + u.Note + ")"
		}
		change := models.RuleChange{
			ID:        uuid.NewString(),
			RuleID:    updated.ID,
			Action:    "update:" + fc.Field,
			Note:      note,
			CreatedAt: now,
		}
		_, err := tx.Exec(ctx, `
		INSERT INTO alert_rule_changes (id, rule_id, action, note, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
			change.ID, change.RuleID, change.Action, change.Note, change.CreatedAt)
		if err != nil {
			return models.Rule{}, nil, fmt.Errorf("failed to record rule change: %w", err)
		}
		changes = append(changes, change)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Rule{}, nil, fmt.Errorf("failed to commit rule update: %w", err)
	}
	return updated, changes, nil
}

// ListRuleChanges returns the most recent change-log entries first.
func (d *DB) ListRuleChanges(ctx context.Context, limit int) ([]models.RuleChange, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, rule_id, action, note, created_at
	FROM alert_rule_changes
	ORDER BY created_at DESC
	LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule changes: %w", err)
	}
	defer rows.Close()

	var list []models.RuleChange
	for rows.Next() {
		var c models.RuleChange
		if err := rows.Scan(&c.ID, &c.RuleID, &c.Action, &c.Note, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule change: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
