// Package ledger turns "currently matched" into "first-time matched".
package ledger

import (
	"context"
	"errors"
	"fmt"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/models"
)

// Store is the insert-if-absent primitive. Implementations must be atomic per
// (rule_id, external_record_id).
type Store interface {
	InsertAlertIfAbsent(ctx context.Context, alert models.AlertRecord) (bool, error)
}

type Ledger struct {
	store  Store
	logger *logging.Logger
}

func New(store Store, logger *logging.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Sync records every match not yet seen under rule and returns the new ones.
// Known pairs are dropped even if their snapshot fields changed. A failed
// insert is reported in the joined error and the match is not returned, so it
// is retried on the next firing.
func (l *Ledger) Sync(ctx context.Context, rule models.Rule, matches []models.Match) ([]models.Match, error) {
	var (
		fresh []models.Match
		errs  []error
	)
	for _, m := range matches {
		if m.Record.ID == "" {
			continue
		}
		inserted, err := l.store.InsertAlertIfAbsent(ctx, models.AlertRecordFromMatch(rule.ID, m))
		if err != nil {
			l.logger.WithField("rule_key", rule.Key).WithField("record_id", m.Record.ID).
				Errorf("Failed to record alert: %v", err)
			errs = append(errs, apperr.Wrap(apperr.ErrPersistence, fmt.Errorf("record %s: %w", m.Record.ID, err)))
			continue
		}
		if inserted {
			fresh = append(fresh, m)
		}
	}
	return fresh, errors.Join(errs...)
}
