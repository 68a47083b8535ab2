package dto

import (
	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// RebuildJournalResult reports how a transaction's stored entries compared to a fresh derivation.
type RebuildJournalResult struct {
	TenantID      string                `json:"tenantID"`
	TransactionID string                `json:"transactionID"`
	Expected      int                   `json:"expected"`
	Stored        int                   `json:"stored"`
	Written       int                   `json:"written"`
	Mismatches    []string              `json:"mismatches,omitempty"`
	Balanced      bool                  `json:"balanced"`
	Entries       []domain.JournalEntry `json:"entries"`
}

// Passed reports whether the stored journal now matches the derivation.
func (r RebuildJournalResult) Passed() bool {
	return r.Balanced && len(r.Mismatches) == 0
}

// RebuildJournalRequest selects what to re-derive. An empty TransactionID covers every
// completed or rolled-back transaction of the tenant.
type RebuildJournalRequest struct {
	TenantID      string `json:"tenantID" binding:"required"`
	TransactionID string `json:"transactionID"`
}
