package memory

import (
	"context"
	"sort"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
)

func (s *scope) getTxn(id string) (domain.Transaction, bool) {
	if s.tx != nil {
		if t, ok := s.tx.transactions[id]; ok {
			return cloneTxn(t), true
		}
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	t, ok := s.db.transactions[id]
	return cloneTxn(t), ok
}

func (s *scope) allTxns() map[string]domain.Transaction {
	merged := make(map[string]domain.Transaction)
	s.db.mu.RLock()
	for id, t := range s.db.transactions {
		merged[id] = cloneTxn(t)
	}
	s.db.mu.RUnlock()
	if s.tx != nil {
		for id, t := range s.tx.transactions {
			merged[id] = cloneTxn(t)
		}
	}
	return merged
}

func (s *scope) FindTransactionByID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	t, ok := s.getTxn(transactionID)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &t, nil
}

func (s *scope) FindTransactionByIdempotencyKey(_ context.Context, tenantID, key string) (*domain.Transaction, error) {
	for _, t := range s.allTxns() {
		if t.TenantID == tenantID && t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			return &t, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *scope) ListTransactions(_ context.Context, filter repositories.TransactionFilter) ([]domain.Transaction, *string, error) {
	tenants := toSet(filter.TenantIDs)
	var matched []domain.Transaction
	for _, t := range s.allTxns() {
		if len(tenants) > 0 && !tenants[t.TenantID] {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.AccountID != nil && !touches(t, *filter.AccountID) {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !t.CreatedAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].TransactionID < matched[j].TransactionID
	})
	return paginate(matched, filter.Page, func(t domain.Transaction) keyset {
		return keyset{at: t.CreatedAt, id: t.TransactionID}
	})
}

func touches(t domain.Transaction, accountID string) bool {
	return (t.FromAccountID != nil && *t.FromAccountID == accountID) ||
		(t.ToAccountID != nil && *t.ToAccountID == accountID)
}

func (s *scope) ListPaymentLegs(_ context.Context, transactionID string) ([]domain.PaymentLeg, error) {
	merged := make(map[string]domain.PaymentLeg)
	s.db.mu.RLock()
	for id, l := range s.db.legs {
		if l.TransactionID == transactionID {
			merged[id] = cloneLeg(l)
		}
	}
	s.db.mu.RUnlock()
	if s.tx != nil {
		for id, l := range s.tx.legs {
			if l.TransactionID == transactionID {
				merged[id] = cloneLeg(l)
			}
		}
	}
	out := make([]domain.PaymentLeg, 0, len(merged))
	for _, l := range merged {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].LegID < out[j].LegID
	})
	return out, nil
}

func (s *scope) SaveTransaction(ctx context.Context, txn domain.Transaction) error {
	if txn.IdempotencyKey != nil {
		if _, err := s.FindTransactionByIdempotencyKey(ctx, txn.TenantID, *txn.IdempotencyKey); err == nil {
			return apperrors.ErrDuplicate
		}
	}
	if _, exists := s.getTxn(txn.TransactionID); exists {
		return apperrors.ErrDuplicate
	}
	return s.mutate(func(st *txState) error {
		st.transactions[txn.TransactionID] = cloneTxn(txn)
		return nil
	})
}

func (s *scope) UpdateTransaction(_ context.Context, txn domain.Transaction, expectedVersion int64) error {
	current, ok := s.getTxn(txn.TransactionID)
	if !ok {
		return apperrors.ErrNotFound
	}
	if current.Version != expectedVersion {
		return apperrors.ErrVersionMismatch
	}
	return s.mutate(func(st *txState) error {
		if _, staged := st.transactions[txn.TransactionID]; !staged {
			st.txnBase[txn.TransactionID] = expectedVersion
		}
		st.transactions[txn.TransactionID] = cloneTxn(txn)
		return nil
	})
}

func (s *scope) SavePaymentLeg(_ context.Context, leg domain.PaymentLeg) error {
	return s.mutate(func(st *txState) error {
		st.legs[leg.LegID] = cloneLeg(leg)
		return nil
	})
}

func (s *scope) UpdatePaymentLeg(_ context.Context, leg domain.PaymentLeg) error {
	return s.mutate(func(st *txState) error {
		st.legs[leg.LegID] = cloneLeg(leg)
		return nil
	})
}
