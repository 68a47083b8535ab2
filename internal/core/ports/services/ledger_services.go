package services

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/dto"
)

// LedgerImmediateSvc posts operations that complete inside one unit of work.
type LedgerImmediateSvc interface {
	Transfer(ctx context.Context, actor domain.Actor, req dto.TransferRequest) (*domain.Transaction, error)
	Exchange(ctx context.Context, actor domain.Actor, req dto.ExchangeRequest) (*domain.Transaction, error)
	PostFee(ctx context.Context, actor domain.Actor, req dto.PostFeeRequest) (*domain.Transaction, error)
	PostAdjustment(ctx context.Context, actor domain.Actor, req dto.PostAdjustmentRequest) (*domain.Transaction, error)
	PostRefund(ctx context.Context, actor domain.Actor, req dto.PostRefundRequest) (*domain.Transaction, error)
	ExecuteBatch(ctx context.Context, actor domain.Actor, req dto.BatchRequest) ([]domain.Transaction, error)
}

// LedgerStagedSvc drives staged trades through their state machine.
// Every mutation takes the version the caller last saw.
type LedgerStagedSvc interface {
	CreateStagedTransaction(ctx context.Context, actor domain.Actor, req dto.CreateTradeRequest) (*domain.Transaction, error)
	AddPayment(ctx context.Context, actor domain.Actor, transactionID string, req dto.AddPaymentRequest) (*domain.Transaction, error)
	VerifyPayment(ctx context.Context, actor domain.Actor, transactionID string, req dto.VerifyPaymentRequest) (*domain.Transaction, error)
	CancelTransaction(ctx context.Context, actor domain.Actor, transactionID string, req dto.TransitionRequest) (*domain.Transaction, error)
	FailTransaction(ctx context.Context, actor domain.Actor, transactionID string, req dto.TransitionRequest) (*domain.Transaction, error)
}

// LedgerRollbackSvc reverses completed transactions.
type LedgerRollbackSvc interface {
	Rollback(ctx context.Context, actor domain.Actor, transactionID string, req dto.TransitionRequest) (*domain.Transaction, error)
}

// LedgerReaderSvc defines read operations for transactions.
type LedgerReaderSvc interface {
	GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, actor domain.Actor, params dto.ListTransactionsParams) ([]domain.Transaction, *string, error)
	ListPaymentLegs(ctx context.Context, actor domain.Actor, transactionID string) ([]domain.PaymentLeg, error)
}

// LedgerSvcFacade combines all coordinator service interfaces.
type LedgerSvcFacade interface {
	LedgerImmediateSvc
	LedgerStagedSvc
	LedgerRollbackSvc
	LedgerReaderSvc
}
