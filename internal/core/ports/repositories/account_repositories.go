package repositories

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// AccountReader defines read operations for account data. Reads outside a
// unit of work may be stale by one in-flight unit.
type AccountReader interface {
	// FindAccountByID retrieves a specific account by its unique identifier.
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)

	// FindAccountByNumber retrieves an account by its generated account number.
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)

	// FindAccountsByIDs retrieves multiple accounts; missing ids are absent from the map.
	FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)

	// ListAccounts retrieves a page of accounts ordered by creation time.
	ListAccounts(ctx context.Context, filter AccountFilter) ([]domain.Account, *string, error)
}

// AccountWriter defines write operations for account data.
type AccountWriter interface {
	// SaveAccount persists a new account. Returns apperrors.ErrDuplicate on an account number clash.
	SaveAccount(ctx context.Context, account domain.Account) error

	// UpdateAccount writes every mutable column of an account.
	UpdateAccount(ctx context.Context, account domain.Account) error

	// NextAccountSequence returns the next value of the monotonic numbering source.
	NextAccountSequence(ctx context.Context) (int64, error)
}

// AccountTransactionSupport defines operations valid only inside a unit of work.
type AccountTransactionSupport interface {
	// LockAccountForUpdate locks one account row until the unit of work ends.
	// Callers lock in ascending id order. Returns apperrors.ErrNotFound when missing.
	LockAccountForUpdate(ctx context.Context, accountID string) (*domain.Account, error)
}

// AccountRepositoryFacade combines all account-related repository interfaces.
type AccountRepositoryFacade interface {
	AccountReader
	AccountWriter
	AccountTransactionSupport
}
