package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/models"
)

// CreateContactPoint inserts a new delivery channel for a tenant.
func (d *DB) CreateContactPoint(ctx context.Context, cp models.ContactPoint) (models.ContactPoint, error) {
	// Ensure ID is set
	if cp.ID == [16]byte{} {
		newID := uuid.New()
		copy(cp.ID[:], newID[:])
	}
	if cp.Status == "" {
		cp.Status = models.ContactPointActive
	}
	if cp.Configuration == nil {
		cp.Configuration = map[string]interface{}{}
	}

	query := `
	INSERT INTO contact_points (
		id, tenant_id, name, type, configuration, status, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	RETURNING created_at, updated_at`

	err := d.Pool.QueryRow(ctx, query,
		uuid.UUID(cp.ID),
		cp.TenantID,
		cp.Name,
		cp.Type,
		cp.Configuration, // Directly bind the map as JSONB
		cp.Status,
	).Scan(&cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return models.ContactPoint{}, fmt.Errorf("failed to create contact point: %w", err)
	}
	return cp, nil
}

// GetContactPointsByTenant returns all active contact points for a tenant.
func (d *DB) GetContactPointsByTenant(ctx context.Context, tenantID string) ([]models.ContactPoint, error) {
	query := `
	SELECT id, tenant_id, name, type, configuration, status, created_at, updated_at
	FROM contact_points
	WHERE tenant_id = $1 AND status = 'active'
	ORDER BY created_at`

	rows, err := d.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact points by tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var cps []models.ContactPoint
	for rows.Next() {
		var cp models.ContactPoint
		var returnedID uuid.UUID
		err := rows.Scan(
			&returnedID,
			&cp.TenantID,
			&cp.Name,
			&cp.Type,
			&cp.Configuration,
			&cp.Status,
			&cp.CreatedAt,
			&cp.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact point: %w", err)
		}
		copy(cp.ID[:], returnedID[:])
		cps = append(cps, cp)
	}

	return cps, rows.Err()
}

// ListActiveTenants returns tenants that have at least one active contact point.
func (d *DB) ListActiveTenants(ctx context.Context) ([]string, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT DISTINCT tenant_id
	FROM contact_points
	WHERE status = 'active' AND tenant_id <> ''
	ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// DeleteContactPoint performs a soft-delete by marking status and updating timestamp.
func (d *DB) DeleteContactPoint(ctx context.Context, idStr string) error {
	idUUID, err := uuid.Parse(idStr)
	if err != nil {
		return apperr.Configf("invalid UUID format: %v", err)
	}

	query := `
	UPDATE contact_points
	SET status = 'deleted', updated_at = NOW()
	WHERE id = $1 AND status = 'active'`
	tag, err := d.Pool.Exec(ctx, query, idUUID)
	if err != nil {
		return fmt.Errorf("failed to delete contact point: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("contact point %s not found", idStr)
	}
	return nil
}
