package repositories

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// AccountFilter narrows ListAccounts.
type AccountFilter struct {
	TenantIDs []string
	OwnerID   *string
	Status    *domain.AccountStatus
	Currency  *domain.CurrencyCode
	Page      domain.Page
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	TenantIDs []string
	Status    *domain.TransactionStatus
	Type      *domain.TransactionType
	AccountID *string
	From      *time.Time
	To        *time.Time
	Page      domain.Page
}
