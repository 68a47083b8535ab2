package domain_test

import (
	"fmt"
	"testing"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTenantGraph_AncestorsAndDescendants(t *testing.T) {
	g := domain.NewTenantGraph([]domain.Tenant{
		{TenantID: "root", Level: 0, IsActive: true},
		{TenantID: "ex", ParentID: strPtr("root"), Level: 1, IsActive: true},
		{TenantID: "br1", ParentID: strPtr("ex"), Level: 2, IsActive: true},
		{TenantID: "br2", ParentID: strPtr("ex"), Level: 2, IsActive: true},
		{TenantID: "other", Level: 0, IsActive: true},
	})

	chain, err := g.Ancestors("br1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ex", "root"}, chain)

	isAnc, err := g.IsAncestor("root", "br2")
	require.NoError(t, err)
	assert.True(t, isAnc)

	isAnc, err = g.IsAncestor("other", "br2")
	require.NoError(t, err)
	assert.False(t, isAnc)

	desc, err := g.Descendants("ex")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ex", "br1", "br2"}, desc)

	_, err = g.Ancestors("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownTenant)
}

func TestTenantGraph_DetectsCycles(t *testing.T) {
	g := domain.NewTenantGraph([]domain.Tenant{
		{TenantID: "a", ParentID: strPtr("b"), Level: 1},
		{TenantID: "b", ParentID: strPtr("a"), Level: 2},
	})

	_, err := g.Ancestors("a")
	assert.ErrorIs(t, err, domain.ErrCorruptHierarchy)

	_, err = g.Descendants("a")
	assert.ErrorIs(t, err, domain.ErrCorruptHierarchy)
}

func TestTenantGraph_DepthIsBounded(t *testing.T) {
	tenants := []domain.Tenant{{TenantID: "t0"}}
	for i := 1; i <= domain.MaxHierarchyDepth+1; i++ {
		tenants = append(tenants, domain.Tenant{TenantID: fmt.Sprintf("t%d", i), ParentID: strPtr(fmt.Sprintf("t%d", i-1))})
	}
	g := domain.NewTenantGraph(tenants)

	_, err := g.Ancestors(fmt.Sprintf("t%d", domain.MaxHierarchyDepth))
	assert.NoError(t, err)

	_, err = g.Ancestors(fmt.Sprintf("t%d", domain.MaxHierarchyDepth+1))
	assert.ErrorIs(t, err, domain.ErrCorruptHierarchy)
}
