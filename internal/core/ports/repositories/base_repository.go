package repositories

import (
	"context"
)

// Store gives access to every repository bound to one scope: either the
// autocommit connection or an open unit of work.
type Store interface {
	Tenants() TenantRepositoryFacade
	Users() UserRepositoryFacade
	Accounts() AccountRepositoryFacade
	Transactions() TransactionRepositoryFacade
	Journal() JournalRepositoryFacade
	Audit() AuditRepositoryFacade
	ExchangeRates() ExchangeRateRepositoryFacade
}

// TxFunc runs inside a unit of work. Returning an error aborts it.
type TxFunc func(ctx context.Context, tx Store) error

// TransactionManager runs functions inside serializable units of work.
type TransactionManager interface {
	// WithinTx opens a serializable scope, runs fn and commits when fn returns nil.
	// Any error rolls the scope back. Deadlocks and serialization failures are
	// reported wrapped around apperrors.ErrWriteConflict; the context deadline
	// aborts the scope and is reported as the context error.
	WithinTx(ctx context.Context, fn TxFunc) error
}

// UnitOfWorkStore is the full persistence contract used by services.
type UnitOfWorkStore interface {
	Store
	TransactionManager
}
