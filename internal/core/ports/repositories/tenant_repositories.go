package repositories

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// TenantReader defines read operations for tenant data.
type TenantReader interface {
	// FindTenantByID returns apperrors.ErrNotFound when missing.
	FindTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	// ListTenants returns the whole forest; the graph is small and walked in memory.
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
}

// TenantWriter defines write operations for tenant data.
type TenantWriter interface {
	// SaveTenant returns apperrors.ErrDuplicate when the code is taken.
	SaveTenant(ctx context.Context, tenant domain.Tenant) error
	UpdateTenant(ctx context.Context, tenant domain.Tenant) error
}

// TenantRepositoryFacade combines all tenant repository interfaces.
type TenantRepositoryFacade interface {
	TenantReader
	TenantWriter
}
