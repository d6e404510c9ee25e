// Package schedule owns the schedule catalog, override resolution and the
// live timer registry.
package schedule

import (
	"sort"

	"project-alert-service/internal/models"
)

// Catalog is the static, code-defined list of schedules.
type Catalog struct {
	defs []models.ScheduleDefinition
	byID map[string]models.ScheduleDefinition
}

// NewCatalog builds a catalog; later duplicates of an id are ignored.
func NewCatalog(defs ...models.ScheduleDefinition) *Catalog {
	c := &Catalog{byID: make(map[string]models.ScheduleDefinition, len(defs))}
	for _, d := range defs {
		if _, dup := c.byID[d.ID]; dup {
			continue
		}
		c.byID[d.ID] = d
		c.defs = append(c.defs, d)
	}
	sort.Slice(c.defs, func(i, j int) bool { return c.defs[i].ID < c.defs[j].ID })
	return c
}

// DefaultCatalog returns the schedules shipped with the service.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		models.ScheduleDefinition{
			ID:          "risk-daily",
			Name:        "Daily risk digest",
			JobIDs:      []string{string(models.RuleTypeDeadlineProgress), string(models.RuleTypeBlocked), string(models.RuleTypeOverdue)},
			DefaultCron: "0 9 * * 1-5",
		},
		models.ScheduleDefinition{
			ID:          "overdue-sweep",
			Name:        "Overdue sweep",
			JobIDs:      []string{string(models.RuleTypeOverdue)},
			DefaultCron: "0 14 * * 1-5",
		},
	)
}

// List returns the definitions ordered by id.
func (c *Catalog) List() []models.ScheduleDefinition {
	out := make([]models.ScheduleDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Lookup returns the definition for id.
func (c *Catalog) Lookup(id string) (models.ScheduleDefinition, bool) {
	d, ok := c.byID[id]
	return d, ok
}
