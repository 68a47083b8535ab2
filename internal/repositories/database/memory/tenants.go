package memory

import (
	"context"
	"sort"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

func (s *scope) FindTenantByID(_ context.Context, tenantID string) (*domain.Tenant, error) {
	if s.tx != nil {
		if t, ok := s.tx.tenants[tenantID]; ok {
			return &t, nil
		}
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	t, ok := s.db.tenants[tenantID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &t, nil
}

func (s *scope) ListTenants(_ context.Context) ([]domain.Tenant, error) {
	merged := make(map[string]domain.Tenant)
	s.db.mu.RLock()
	for id, t := range s.db.tenants {
		merged[id] = t
	}
	s.db.mu.RUnlock()
	if s.tx != nil {
		for id, t := range s.tx.tenants {
			merged[id] = t
		}
	}
	out := make([]domain.Tenant, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (s *scope) SaveTenant(_ context.Context, tenant domain.Tenant) error {
	return s.mutate(func(st *txState) error {
		st.tenants[tenant.TenantID] = tenant
		st.newTenants[tenant.TenantID] = true
		return nil
	})
}

func (s *scope) UpdateTenant(ctx context.Context, tenant domain.Tenant) error {
	if _, err := s.FindTenantByID(ctx, tenant.TenantID); err != nil {
		return err
	}
	return s.mutate(func(st *txState) error {
		st.tenants[tenant.TenantID] = tenant
		return nil
	})
}
