package services

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/dto"
)

// TenantAccessSvc resolves what an actor may do against tenants.
type TenantAccessSvc interface {
	// ResolveAccess applies the hierarchy rules: super and same tenant are granted,
	// descendants are granted for any action, ancestors for reads only.
	ResolveAccess(ctx context.Context, actor domain.Actor, targetTenantID string, action domain.TenantAction) (domain.AccessDecision, error)

	// AccessibleTenants returns every tenant the actor may act on for action.
	// A nil slice with a nil error means unrestricted (super actors).
	AccessibleTenants(ctx context.Context, actor domain.Actor, action domain.TenantAction) ([]string, error)
}

// TenantReaderSvc defines read operations for tenants.
type TenantReaderSvc interface {
	GetTenant(ctx context.Context, actor domain.Actor, tenantID string) (*domain.Tenant, error)
	ListTenants(ctx context.Context, actor domain.Actor) ([]domain.Tenant, error)
}

// TenantWriterSvc defines tree mutations.
type TenantWriterSvc interface {
	CreateTenant(ctx context.Context, actor domain.Actor, req dto.CreateTenantRequest) (*domain.Tenant, error)
	MoveTenant(ctx context.Context, actor domain.Actor, tenantID string, req dto.MoveTenantRequest) (*domain.Tenant, error)
	DeactivateTenant(ctx context.Context, actor domain.Actor, tenantID string) error
}

// TenantSvcFacade combines all tenant-related service interfaces.
type TenantSvcFacade interface {
	TenantAccessSvc
	TenantReaderSvc
	TenantWriterSvc
}
