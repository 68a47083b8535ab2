package services

import (
	"context"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/SscSPs/fx_ledger/internal/dto"
)

// JournalProjectorSvc derives entries inside the coordinator's unit of work.
type JournalProjectorSvc interface {
	// Derive computes the balanced entries for a transaction without writing them.
	Derive(txn domain.Transaction, at time.Time) ([]domain.JournalEntry, error)
	// Project derives, verifies and appends the entries of a completed transaction.
	Project(ctx context.Context, tx repositories.Store, txn domain.Transaction, at time.Time) ([]domain.JournalEntry, error)
	// Reverse appends swapped copies of the transaction's stored entries.
	Reverse(ctx context.Context, tx repositories.Store, txn domain.Transaction, at time.Time) ([]domain.JournalEntry, error)
}

// JournalReaderSvc defines read operations for the journal.
type JournalReaderSvc interface {
	GetEntries(ctx context.Context, actor domain.Actor, transactionID string) ([]domain.JournalEntry, error)
	TrialBalance(ctx context.Context, actor domain.Actor, tenantID string) (*domain.TrialBalance, error)
}

// JournalMaintenanceSvc holds operator repairs.
type JournalMaintenanceSvc interface {
	RebuildJournal(ctx context.Context, actor domain.Actor, tenantID, transactionID string) (*dto.RebuildJournalResult, error)
}

// JournalSvcFacade combines all journal service interfaces.
type JournalSvcFacade interface {
	JournalProjectorSvc
	JournalReaderSvc
	JournalMaintenanceSvc
}
