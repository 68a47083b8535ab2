package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
)

var errNoUnitOfWork = errors.New("row locks require a unit of work")

func (s *scope) getAccount(id string) (domain.Account, bool) {
	if s.tx != nil {
		if a, ok := s.tx.accounts[id]; ok {
			return a, true
		}
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	a, ok := s.db.accounts[id]
	return a, ok
}

func (s *scope) allAccounts() map[string]domain.Account {
	merged := make(map[string]domain.Account)
	s.db.mu.RLock()
	for id, a := range s.db.accounts {
		merged[id] = a
	}
	s.db.mu.RUnlock()
	if s.tx != nil {
		for id, a := range s.tx.accounts {
			merged[id] = a
		}
	}
	return merged
}

func (s *scope) FindAccountByID(_ context.Context, accountID string) (*domain.Account, error) {
	a, ok := s.getAccount(accountID)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &a, nil
}

func (s *scope) FindAccountByNumber(_ context.Context, accountNumber string) (*domain.Account, error) {
	for _, a := range s.allAccounts() {
		if a.AccountNumber == accountNumber {
			return &a, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *scope) FindAccountsByIDs(_ context.Context, accountIDs []string) (map[string]domain.Account, error) {
	out := make(map[string]domain.Account, len(accountIDs))
	for _, id := range accountIDs {
		if a, ok := s.getAccount(id); ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *scope) ListAccounts(_ context.Context, filter repositories.AccountFilter) ([]domain.Account, *string, error) {
	tenants := toSet(filter.TenantIDs)
	var matched []domain.Account
	for _, a := range s.allAccounts() {
		if len(tenants) > 0 && !tenants[a.TenantID] {
			continue
		}
		if filter.OwnerID != nil && a.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.Currency != nil && a.CurrencyCode != *filter.Currency {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].AccountID < matched[j].AccountID
	})
	return paginate(matched, filter.Page, func(a domain.Account) keyset {
		return keyset{at: a.CreatedAt, id: a.AccountID}
	})
}

func (s *scope) SaveAccount(_ context.Context, account domain.Account) error {
	if existing, err := s.FindAccountByNumber(context.Background(), account.AccountNumber); err == nil && existing.AccountID != account.AccountID {
		return apperrors.ErrDuplicate
	}
	return s.mutate(func(st *txState) error {
		st.accounts[account.AccountID] = account
		st.newAccounts[account.AccountID] = true
		return nil
	})
}

func (s *scope) UpdateAccount(_ context.Context, account domain.Account) error {
	if _, ok := s.getAccount(account.AccountID); !ok {
		return apperrors.ErrNotFound
	}
	return s.mutate(func(st *txState) error {
		st.accounts[account.AccountID] = account
		return nil
	})
}

func (s *scope) NextAccountSequence(_ context.Context) (int64, error) {
	return s.db.seq.Add(1), nil
}

func (s *scope) LockAccountForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	if s.tx == nil {
		return nil, errNoUnitOfWork
	}
	if !s.tx.heldIDs[accountID] {
		ch := s.db.rowLock(accountID)
		select {
		case ch <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.tx.held = append(s.tx.held, ch)
		s.tx.heldIDs[accountID] = true
	}
	a, ok := s.getAccount(accountID)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &a, nil
}
