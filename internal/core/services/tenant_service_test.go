package services_test

import (
	"testing"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTenant_Hierarchy(t *testing.T) {
	f := newFixture(t)

	branch, err := f.svc.Tenant.CreateTenant(f.ctx, f.admin1, dto.CreateTenantRequest{Code: "br1", Name: "Branch 1", ParentID: strPtr("t1"), Level: 2, OwnerID: "admin1"})
	require.NoError(t, err)
	assert.True(t, branch.IsActive)

	_, err = f.svc.Tenant.CreateTenant(f.ctx, f.admin1, dto.CreateTenantRequest{Code: "br2", Name: "Branch 2", ParentID: strPtr("t1"), Level: 1, OwnerID: "admin1"})
	assert.Equal(t, apperrors.InvalidHierarchyLevel, apperrors.KindOf(err), "child level must exceed parent level")

	_, err = f.svc.Tenant.CreateTenant(f.ctx, f.admin1, dto.CreateTenantRequest{Code: "br3", Name: "Branch 3", ParentID: strPtr("t2"), Level: 2, OwnerID: "admin1"})
	assert.Equal(t, apperrors.PermissionDenied, apperrors.KindOf(err), "t2 is outside admin1's subtree")

	_, err = f.svc.Tenant.CreateTenant(f.ctx, f.admin1, dto.CreateTenantRequest{Code: "root2", Name: "Root 2", Level: 0, OwnerID: "admin1"})
	assert.Equal(t, apperrors.PermissionDenied, apperrors.KindOf(err), "roots are super-only")

	_, err = f.svc.Tenant.CreateTenant(f.ctx, f.super, dto.CreateTenantRequest{Code: "br1", Name: "Dup", ParentID: strPtr("t1"), Level: 2, OwnerID: "admin1"})
	assert.Equal(t, apperrors.Conflict, apperrors.KindOf(err))

	assert.Len(t, f.events(domain.EventTenantCreated), 1)
}

func TestMoveTenant_RejectsCycles(t *testing.T) {
	f := newFixture(t)
	branch, err := f.svc.Tenant.CreateTenant(f.ctx, f.super, dto.CreateTenantRequest{Code: "br1", Name: "Branch 1", ParentID: strPtr("t1"), Level: 2, OwnerID: "admin1"})
	require.NoError(t, err)

	_, err = f.svc.Tenant.MoveTenant(f.ctx, f.super, "t1", dto.MoveTenantRequest{NewParentID: branch.TenantID})
	assert.Equal(t, apperrors.CircularReference, apperrors.KindOf(err))

	_, err = f.svc.Tenant.MoveTenant(f.ctx, f.super, "t1", dto.MoveTenantRequest{NewParentID: "t1"})
	assert.Equal(t, apperrors.CircularReference, apperrors.KindOf(err))

	moved, err := f.svc.Tenant.MoveTenant(f.ctx, f.super, branch.TenantID, dto.MoveTenantRequest{NewParentID: "t2"})
	require.NoError(t, err)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, "t2", *moved.ParentID)

	decision, err := f.svc.Tenant.ResolveAccess(f.ctx, f.admin1, branch.TenantID, domain.ActionRead)
	require.NoError(t, err)
	assert.False(t, decision.Granted, "access follows the new parent")
}

func TestDeactivateTenant_BlocksAccess(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Tenant.DeactivateTenant(f.ctx, f.admin1, "t1")
	assert.Equal(t, apperrors.PermissionDenied, apperrors.KindOf(err), "actors cannot deactivate their own tenant")

	require.NoError(t, f.svc.Tenant.DeactivateTenant(f.ctx, f.super, "t1"))
	require.NoError(t, f.svc.Tenant.DeactivateTenant(f.ctx, f.super, "t1"), "deactivation is idempotent")

	_, err = f.svc.Tenant.GetTenant(f.ctx, f.admin1, "t1")
	assert.Equal(t, apperrors.PermissionDenied, apperrors.KindOf(err))
	_, err = f.svc.User.ResolveActor(f.ctx, "admin1", "203.0.113.7", "ledger-tests")
	assert.Equal(t, apperrors.PermissionDenied, apperrors.KindOf(err))
}

func TestListTenants_Scoped(t *testing.T) {
	f := newFixture(t)

	all, err := f.svc.Tenant.ListTenants(f.ctx, f.super)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	visible, err := f.svc.Tenant.ListTenants(f.ctx, f.admin1)
	require.NoError(t, err)
	ids := make([]string, 0, len(visible))
	for _, tenant := range visible {
		ids = append(ids, tenant.TenantID)
	}
	assert.ElementsMatch(t, []string{"t1", "root"}, ids, "own subtree plus read-only ancestors")
}
