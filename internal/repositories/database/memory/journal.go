package memory

import (
	"context"
	"sort"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

func (s *scope) allEntries() []domain.JournalEntry {
	s.db.mu.RLock()
	out := append([]domain.JournalEntry(nil), s.db.entries...)
	s.db.mu.RUnlock()
	if s.tx != nil {
		out = append(out, s.tx.entries...)
	}
	return out
}

func (s *scope) FindEntriesByTransactionID(_ context.Context, transactionID string) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for _, e := range s.allEntries() {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *scope) SumEntriesByClass(_ context.Context, tenantID string) ([]domain.TrialBalanceRow, error) {
	type key struct {
		currency domain.CurrencyCode
		class    domain.AccountClass
	}
	sums := make(map[key]*domain.TrialBalanceRow)
	for _, e := range s.allEntries() {
		if e.TenantID != tenantID {
			continue
		}
		k := key{e.Currency, e.AccountClass}
		row, ok := sums[k]
		if !ok {
			row = &domain.TrialBalanceRow{Currency: e.Currency, AccountClass: e.AccountClass, Debit: decimal.Zero, Credit: decimal.Zero}
			sums[k] = row
		}
		row.Debit = row.Debit.Add(e.Debit)
		row.Credit = row.Credit.Add(e.Credit)
	}
	out := make([]domain.TrialBalanceRow, 0, len(sums))
	for _, row := range sums {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Currency != out[j].Currency {
			return out[i].Currency < out[j].Currency
		}
		return out[i].AccountClass < out[j].AccountClass
	})
	return out, nil
}

func (s *scope) SaveEntries(_ context.Context, entries []domain.JournalEntry) error {
	return s.mutate(func(st *txState) error {
		st.entries = append(st.entries, entries...)
		return nil
	})
}
