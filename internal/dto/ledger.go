package dto

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

// TransferRequest moves value between two accounts of the same currency.
type TransferRequest struct {
	FromAccountID  string          `json:"fromAccountID" binding:"required"`
	ToAccountID    string          `json:"toAccountID" binding:"required,nefield=FromAccountID"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" binding:"max=512"`
	IdempotencyKey *string         `json:"idempotencyKey" binding:"omitempty,max=128"`
}

// ExchangeRequest converts value between two accounts of different currencies.
// Commission is charged in the source currency on top of Amount.
type ExchangeRequest struct {
	FromAccountID  string          `json:"fromAccountID" binding:"required"`
	ToAccountID    string          `json:"toAccountID" binding:"required,nefield=FromAccountID"`
	Amount         decimal.Decimal `json:"amount"`
	Commission     decimal.Decimal `json:"commission"`
	Description    string          `json:"description" binding:"max=512"`
	IdempotencyKey *string         `json:"idempotencyKey" binding:"omitempty,max=128"`
}

// CreateTradeRequest opens a staged buy, sell or remittance.
// For buys CounterCurrency is what the customer pays in; for sells and
// remittances it is what is paid out.
type CreateTradeRequest struct {
	Type            domain.TransactionType `json:"type" binding:"required,oneof=buy sell remittance"`
	AccountID       string                 `json:"accountID" binding:"required"`
	CounterCurrency domain.CurrencyCode    `json:"counterCurrency" binding:"required"`
	Amount          decimal.Decimal        `json:"amount"` // In the source currency
	Commission      decimal.Decimal        `json:"commission"`
	Description     string                 `json:"description" binding:"max=512"`
	IdempotencyKey  *string                `json:"idempotencyKey" binding:"omitempty,max=128"`
}

// AddPaymentRequest records one payment leg against a staged transaction.
type AddPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method" binding:"required,oneof=cash bank wallet card crypto"`
	ProofRefs       []string        `json:"proofRefs" binding:"max=16"`
	ExpectedVersion int64           `json:"expectedVersion" binding:"min=0"`
}

// VerifyPaymentRequest marks a leg as verified.
type VerifyPaymentRequest struct {
	LegID           string `json:"legID" binding:"required"`
	ExpectedVersion int64  `json:"expectedVersion" binding:"min=0"`
}

// TransitionRequest cancels, fails or rolls back a transaction.
type TransitionRequest struct {
	Reason          string `json:"reason" binding:"required,max=512"`
	ExpectedVersion int64  `json:"expectedVersion" binding:"min=0"`
}

// PostFeeRequest charges a fee to an account.
type PostFeeRequest struct {
	AccountID      string          `json:"accountID" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" binding:"max=512"`
	IdempotencyKey *string         `json:"idempotencyKey" binding:"omitempty,max=128"`
}

// PostAdjustmentRequest corrects an account balance against the tenant's cash position.
type PostAdjustmentRequest struct {
	AccountID      string                     `json:"accountID" binding:"required"`
	Amount         decimal.Decimal            `json:"amount"`
	Direction      domain.AdjustmentDirection `json:"direction" binding:"required,oneof=deposit withdrawal"`
	Description    string                     `json:"description" binding:"required,max=512"`
	IdempotencyKey *string                    `json:"idempotencyKey" binding:"omitempty,max=128"`
}

// PostRefundRequest credits an account, optionally referencing the transaction refunded.
type PostRefundRequest struct {
	AccountID             string          `json:"accountID" binding:"required"`
	Amount                decimal.Decimal `json:"amount"`
	OriginalTransactionID *string         `json:"originalTransactionID"`
	Description           string          `json:"description" binding:"required,max=512"`
	IdempotencyKey        *string         `json:"idempotencyKey" binding:"omitempty,max=128"`
}

// BatchItem is one transfer or exchange of a batch.
type BatchItem struct {
	Type          domain.TransactionType `json:"type" binding:"required,oneof=transfer exchange"`
	FromAccountID string                 `json:"fromAccountID" binding:"required"`
	ToAccountID   string                 `json:"toAccountID" binding:"required,nefield=FromAccountID"`
	Amount        decimal.Decimal        `json:"amount"`
	Commission    decimal.Decimal        `json:"commission"`
	Description   string                 `json:"description" binding:"max=512"`
}

// BatchRequest runs every item in one unit of work. Either all commit or none.
type BatchRequest struct {
	Items          []BatchItem `json:"items" binding:"required,min=1,max=100,dive"`
	IdempotencyKey *string     `json:"idempotencyKey" binding:"omitempty,max=128"`
}

// ListTransactionsParams defines query parameters for listing transactions.
type ListTransactionsParams struct {
	TenantID  string                    `form:"tenantID"`
	Status    *domain.TransactionStatus `form:"status"`
	Type      *domain.TransactionType   `form:"type"`
	AccountID *string                   `form:"accountID"`
	From      *time.Time                `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time                `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int                       `form:"limit,default=50" binding:"min=0,max=500"`
	NextToken *string                   `form:"nextToken"`
}

// TransactionResponse mirrors domain.Transaction.
type TransactionResponse struct {
	TransactionID   string                      `json:"transactionID"`
	TenantID        string                      `json:"tenantID"`
	ActorID         string                      `json:"actorID"`
	Type            domain.TransactionType      `json:"type"`
	FromAccountID   *string                     `json:"fromAccountID"`
	ToAccountID     *string                     `json:"toAccountID"`
	SourceAmount    decimal.Decimal             `json:"sourceAmount"`
	SourceCurrency  domain.CurrencyCode         `json:"sourceCurrency"`
	Rate            decimal.Decimal             `json:"rate"`
	ConvertedAmount decimal.Decimal             `json:"convertedAmount"`
	TargetCurrency  domain.CurrencyCode         `json:"targetCurrency"`
	Commission      decimal.Decimal             `json:"commission"`
	Total           decimal.Decimal             `json:"total"`
	Paid            decimal.Decimal             `json:"paid"`
	Remaining       decimal.Decimal             `json:"remaining"`
	Status          domain.TransactionStatus    `json:"status"`
	Version         int64                       `json:"version"`
	StatusHistory   []domain.StatusChange       `json:"statusHistory"`
	IdempotencyKey  *string                     `json:"idempotencyKey,omitempty"`
	Description     string                      `json:"description"`
	Direction       *domain.AdjustmentDirection `json:"direction,omitempty"`
	CreatedAt       time.Time                   `json:"createdAt"`
	CreatedBy       string                      `json:"createdBy"`
	LastUpdatedAt   time.Time                   `json:"lastUpdatedAt"`
}

// ListTransactionsResponse is one page of transactions.
type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextToken    *string               `json:"nextToken,omitempty"`
}

// BatchResponse lists the transactions committed by a batch, in execution order.
type BatchResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// PaymentLegResponse mirrors domain.PaymentLeg.
type PaymentLegResponse struct {
	LegID         string                  `json:"legID"`
	TransactionID string                  `json:"transactionID"`
	Direction     domain.PaymentDirection `json:"direction"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      domain.CurrencyCode     `json:"currency"`
	Method        string                  `json:"method"`
	ProofRefs     []string                `json:"proofRefs"`
	Verified      bool                    `json:"verified"`
	VerifiedBy    *string                 `json:"verifiedBy,omitempty"`
	VerifiedAt    *time.Time              `json:"verifiedAt,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
}

// ToTransactionResponse converts a domain.Transaction to its response DTO.
func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:   t.TransactionID,
		TenantID:        t.TenantID,
		ActorID:         t.ActorID,
		Type:            t.Type,
		FromAccountID:   t.FromAccountID,
		ToAccountID:     t.ToAccountID,
		SourceAmount:    t.SourceAmount,
		SourceCurrency:  t.SourceCurrency,
		Rate:            t.Rate,
		ConvertedAmount: t.ConvertedAmount,
		TargetCurrency:  t.TargetCurrency,
		Commission:      t.Commission,
		Total:           t.Total,
		Paid:            t.Paid,
		Remaining:       t.Remaining,
		Status:          t.Status,
		Version:         t.Version,
		StatusHistory:   t.StatusHistory,
		IdempotencyKey:  t.IdempotencyKey,
		Description:     t.Description,
		Direction:       t.Direction,
		CreatedAt:       t.CreatedAt,
		CreatedBy:       t.CreatedBy,
		LastUpdatedAt:   t.LastUpdatedAt,
	}
}

// ToListTransactionResponse converts a page of transactions.
func ToListTransactionResponse(txns []domain.Transaction, next *string) ListTransactionsResponse {
	res := make([]TransactionResponse, len(txns))
	for i := range txns {
		res[i] = ToTransactionResponse(&txns[i])
	}
	return ListTransactionsResponse{Transactions: res, NextToken: next}
}

// ToPaymentLegResponse converts a domain.PaymentLeg to its response DTO.
func ToPaymentLegResponse(l *domain.PaymentLeg) PaymentLegResponse {
	return PaymentLegResponse{
		LegID:         l.LegID,
		TransactionID: l.TransactionID,
		Direction:     l.Direction,
		Amount:        l.Amount,
		Currency:      l.Currency,
		Method:        l.Method,
		ProofRefs:     l.ProofRefs,
		Verified:      l.Verified,
		VerifiedBy:    l.VerifiedBy,
		VerifiedAt:    l.VerifiedAt,
		CreatedAt:     l.CreatedAt,
	}
}
