package memory

import (
	"context"
	"sort"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

func (s *scope) ratesFor(from, to domain.CurrencyCode, tenantID string) []domain.ExchangeRate {
	s.db.mu.RLock()
	all := append([]domain.ExchangeRate(nil), s.db.rates...)
	s.db.mu.RUnlock()
	if s.tx != nil {
		all = append(all, s.tx.rates...)
	}
	var out []domain.ExchangeRate
	for _, r := range all {
		if r.FromCurrency == from && r.ToCurrency == to && r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	// Newest first.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveAt.Equal(out[j].EffectiveAt) {
			return out[i].EffectiveAt.After(out[j].EffectiveAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *scope) FindActiveRate(_ context.Context, from, to domain.CurrencyCode, tenantID string, at time.Time) (*domain.ExchangeRate, error) {
	for _, r := range s.ratesFor(from, to, tenantID) {
		if r.IsActive && !r.EffectiveAt.After(at) {
			return &r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *scope) ListRateHistory(_ context.Context, from, to domain.CurrencyCode, tenantID string, limit int) ([]domain.ExchangeRate, error) {
	out := s.ratesFor(from, to, tenantID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *scope) SaveExchangeRate(_ context.Context, rate domain.ExchangeRate) error {
	return s.mutate(func(st *txState) error {
		st.rates = append(st.rates, rate)
		return nil
	})
}
