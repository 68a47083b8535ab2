package services

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/SscSPs/fx_ledger/internal/dto"
)

// AccountReaderSvc defines read operations for account data.
type AccountReaderSvc interface {
	GetAccount(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, actor domain.Actor, accountNumber string) (*domain.Account, error)
	ListAccounts(ctx context.Context, actor domain.Actor, params dto.ListAccountsParams) ([]domain.Account, *string, error)
}

// AccountWriterSvc defines account lifecycle operations.
type AccountWriterSvc interface {
	CreateAccount(ctx context.Context, actor domain.Actor, req dto.CreateAccountRequest) (*domain.Account, error)
	UpdateLimits(ctx context.Context, actor domain.Actor, accountID string, req dto.UpdateAccountLimitsRequest) (*domain.Account, error)
	ChangeStatus(ctx context.Context, actor domain.Actor, accountID string, req dto.ChangeAccountStatusRequest) (*domain.Account, error)
	FreezeFunds(ctx context.Context, actor domain.Actor, accountID string, req dto.FreezeFundsRequest) (*domain.Account, error)
	UnfreezeFunds(ctx context.Context, actor domain.Actor, accountID string, req dto.FreezeFundsRequest) (*domain.Account, error)
}

// AccountLockerSvc holds the primitives the coordinator uses inside a unit of work.
type AccountLockerSvc interface {
	// LockForUpdate locks the accounts in ascending id order and returns them keyed by id.
	LockForUpdate(ctx context.Context, tx repositories.Store, accountIDs []string) (map[string]*domain.Account, error)
	// Persist writes back every locked account after its deltas were applied.
	Persist(ctx context.Context, tx repositories.Store, accounts map[string]*domain.Account) error
}

// AccountSvcFacade combines all account-related service interfaces.
type AccountSvcFacade interface {
	AccountReaderSvc
	AccountWriterSvc
	AccountLockerSvc
}
