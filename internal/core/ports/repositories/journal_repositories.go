package repositories

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// JournalReader defines read operations for journal entries.
type JournalReader interface {
	FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.JournalEntry, error)
	// SumEntriesByClass totals debits and credits per currency and account class for a tenant.
	SumEntriesByClass(ctx context.Context, tenantID string) ([]domain.TrialBalanceRow, error)
}

// JournalWriter appends entries. There is no update or delete.
type JournalWriter interface {
	SaveEntries(ctx context.Context, entries []domain.JournalEntry) error
}

// JournalRepositoryFacade combines all journal repository interfaces.
type JournalRepositoryFacade interface {
	JournalReader
	JournalWriter
}
