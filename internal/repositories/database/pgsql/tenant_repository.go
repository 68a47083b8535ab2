package pgsql

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
)

type PgxTenantRepository struct {
	BaseRepository
}

var _ portsrepo.TenantRepositoryFacade = (*PgxTenantRepository)(nil)

const tenantColumns = `tenant_id, code, name, parent_id, level, is_active, owner_id,
	created_at, created_by, last_updated_at, last_updated_by`

func scanTenant(row pgx.Row) (domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.TenantID, &t.Code, &t.Name, &t.ParentID, &t.Level, &t.IsActive, &t.OwnerID,
		&t.CreatedAt, &t.CreatedBy, &t.LastUpdatedAt, &t.LastUpdatedBy,
	)
	t.CreatedAt, t.LastUpdatedAt = utc(t.CreatedAt), utc(t.LastUpdatedAt)
	return t, err
}

// FindTenantByID retrieves a tenant by its ID.
func (r *PgxTenantRepository) FindTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	t, err := scanTenant(r.q.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE tenant_id = $1`, tenantID))
	if err != nil {
		return nil, mapError(err, "failed to find tenant %s", tenantID)
	}
	return &t, nil
}

// ListTenants loads the whole forest.
func (r *PgxTenantRepository) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.q.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY level, tenant_id`)
	if err != nil {
		return nil, mapError(err, "failed to list tenants")
	}
	defer rows.Close()
	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan tenant")
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err(), "failed to iterate tenants")
}

// SaveTenant inserts a new tenant.
func (r *PgxTenantRepository) SaveTenant(ctx context.Context, t domain.Tenant) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.TenantID, t.Code, t.Name, nullable(t.ParentID), t.Level, t.IsActive, t.OwnerID,
		t.CreatedAt, t.CreatedBy, t.LastUpdatedAt, t.LastUpdatedBy,
	)
	return mapError(err, "failed to save tenant %s", t.TenantID)
}

// UpdateTenant writes the mutable columns of a tenant.
func (r *PgxTenantRepository) UpdateTenant(ctx context.Context, t domain.Tenant) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE tenants
		SET name = $2, parent_id = $3, level = $4, is_active = $5, owner_id = $6,
			last_updated_at = $7, last_updated_by = $8
		WHERE tenant_id = $1`,
		t.TenantID, t.Name, nullable(t.ParentID), t.Level, t.IsActive, t.OwnerID,
		t.LastUpdatedAt, t.LastUpdatedBy,
	)
	if err != nil {
		return mapError(err, "failed to update tenant %s", t.TenantID)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// nullable stores empty optional ids as NULL.
func nullable(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
