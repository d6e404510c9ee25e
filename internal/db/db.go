package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*DB, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id                 TEXT PRIMARY KEY,
		key                TEXT NOT NULL UNIQUE,
		type               TEXT NOT NULL,
		name               TEXT NOT NULL,
		threshold_days     INTEGER NOT NULL DEFAULT 0 CHECK (threshold_days >= 0),
		progress_threshold DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (progress_threshold BETWEEN 0 AND 100),
		include_milestones BOOLEAN NOT NULL DEFAULT FALSE,
		blocked_value      TEXT NOT NULL DEFAULT '',
		auto_notify        BOOLEAN NOT NULL DEFAULT TRUE,
		enabled            BOOLEAN NOT NULL DEFAULT TRUE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS alert_rule_changes (
		id         TEXT PRIMARY KEY,
		rule_id    TEXT NOT NULL REFERENCES alert_rules(id),
		action     TEXT NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_rule_changes_created_at ON alert_rule_changes(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS alert_records (
		id                 TEXT PRIMARY KEY,
		rule_id            TEXT NOT NULL,
		external_record_id TEXT NOT NULL,
		task_id            TEXT,
		task_name          TEXT,
		project            TEXT,
		end_date           TIMESTAMPTZ,
		progress           DOUBLE PRECISION NOT NULL DEFAULT 0,
		days_left          INTEGER,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (rule_id, external_record_id)
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_overrides (
		tenant_id   TEXT NOT NULL,
		schedule_id TEXT NOT NULL,
		cron        TEXT NOT NULL,
		timezone    TEXT NOT NULL DEFAULT '',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, schedule_id)
	)`,
	`CREATE TABLE IF NOT EXISTS system_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS job_runs (
		id          TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		scope       TEXT NOT NULL,
		tenant_id   TEXT NOT NULL DEFAULT '',
		trigger     TEXT NOT NULL,
		status      TEXT NOT NULL,
		summary     TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_runs_started_at ON job_runs(started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS contact_points (
		id            UUID PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		name          TEXT NOT NULL,
		type          TEXT NOT NULL,
		configuration JSONB NOT NULL DEFAULT '{}'::jsonb,
		status        TEXT NOT NULL DEFAULT 'active',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contact_points_tenant_status ON contact_points(tenant_id, status)`,
}

// Migrate creates the tables owned by this service if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
