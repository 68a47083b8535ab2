package repositories

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// TransactionReader defines read operations for coordinator transactions.
type TransactionReader interface {
	FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	// FindTransactionByIdempotencyKey returns apperrors.ErrNotFound when the key is unused.
	FindTransactionByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, *string, error)
	ListPaymentLegs(ctx context.Context, transactionID string) ([]domain.PaymentLeg, error)
}

// TransactionWriter defines write operations for coordinator transactions.
type TransactionWriter interface {
	// SaveTransaction inserts a new row. Returns apperrors.ErrDuplicate when the
	// idempotency key is already recorded for the tenant.
	SaveTransaction(ctx context.Context, txn domain.Transaction) error

	// UpdateTransaction replaces the row only if its stored version equals
	// expectedVersion; otherwise it returns apperrors.ErrVersionMismatch.
	UpdateTransaction(ctx context.Context, txn domain.Transaction, expectedVersion int64) error

	SavePaymentLeg(ctx context.Context, leg domain.PaymentLeg) error
	UpdatePaymentLeg(ctx context.Context, leg domain.PaymentLeg) error
}

// TransactionRepositoryFacade combines all transaction repository interfaces.
type TransactionRepositoryFacade interface {
	TransactionReader
	TransactionWriter
}
