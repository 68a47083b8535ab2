package domain

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/shopspring/decimal"
)

// TransactionType is the business kind of a coordinated unit of work.
type TransactionType string

const (
	TxBuy        TransactionType = "buy"
	TxSell       TransactionType = "sell"
	TxTransfer   TransactionType = "transfer"
	TxExchange   TransactionType = "exchange"
	TxFee        TransactionType = "fee"
	TxRemittance TransactionType = "remittance"
	TxAdjustment TransactionType = "adjustment"
	TxRefund     TransactionType = "refund"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TxBuy, TxSell, TxTransfer, TxExchange, TxFee, TxRemittance, TxAdjustment, TxRefund:
		return true
	}
	return false
}

// IsStaged reports whether transactions of type t settle through payment legs.
func (t TransactionType) IsStaged() bool {
	return t == TxBuy || t == TxSell || t == TxRemittance
}

// TransactionStatus is the single canonical lifecycle vocabulary.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusPartial    TransactionStatus = "partial"
	StatusCompleted  TransactionStatus = "completed"
	StatusCancelled  TransactionStatus = "cancelled"
	StatusFailed     TransactionStatus = "failed"
	StatusRolledBack TransactionStatus = "rolled-back"
)

var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:   {StatusPartial, StatusCompleted, StatusCancelled, StatusFailed},
	StatusPartial:   {StatusPartial, StatusCompleted, StatusCancelled, StatusFailed},
	StatusCompleted: {StatusRolledBack},
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further forward progress is possible except rollback.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// StatusChange is one entry of a transaction's status history.
type StatusChange struct {
	From      TransactionStatus `json:"from"`
	To        TransactionStatus `json:"to"`
	ActorID   string            `json:"actorID"`
	Reason    string            `json:"reason"`
	ChangedAt time.Time         `json:"changedAt"`
}

// Transaction is the coordinator's unit-of-work record.
type Transaction struct {
	TransactionID   string            `json:"transactionID"` // Primary Key (e.g., UUID)
	TenantID        string            `json:"tenantID"`
	ActorID         string            `json:"actorID"`
	Type            TransactionType   `json:"type"`
	FromAccountID   *string           `json:"fromAccountID"` // Nil for inbound external legs
	ToAccountID     *string           `json:"toAccountID"`   // Nil for outbound external legs
	SourceAmount    decimal.Decimal   `json:"sourceAmount"`
	SourceCurrency  CurrencyCode      `json:"sourceCurrency"`
	Rate            decimal.Decimal   `json:"rate"`
	ConvertedAmount decimal.Decimal   `json:"convertedAmount"`
	TargetCurrency  CurrencyCode      `json:"targetCurrency"`
	Commission      decimal.Decimal   `json:"commission"`
	Total           decimal.Decimal   `json:"total"`
	Paid            decimal.Decimal   `json:"paid"`
	Remaining       decimal.Decimal   `json:"remaining"`
	Status          TransactionStatus `json:"status"`
	Version         int64             `json:"version"`
	StatusHistory   []StatusChange    `json:"statusHistory"`
	IdempotencyKey  *string           `json:"idempotencyKey,omitempty"`
	Description     string            `json:"description"`

	// Direction is set for adjustments only.
	Direction *AdjustmentDirection `json:"direction,omitempty"`
	AuditFields
}

// AdjustmentDirection tells whether an adjustment credits or debits its account.
type AdjustmentDirection string

const (
	AdjustmentDeposit    AdjustmentDirection = "deposit"
	AdjustmentWithdrawal AdjustmentDirection = "withdrawal"
)

// Transition moves the transaction to next, bumping the version and recording history.
func (t *Transaction) Transition(next TransactionStatus, actorID, reason string, at time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return apperrors.Newf(apperrors.InvalidStateTransition, "transaction %s cannot move from %s to %s", t.TransactionID, t.Status, next)
	}
	t.StatusHistory = append(t.StatusHistory, StatusChange{
		From: t.Status, To: next, ActorID: actorID, Reason: reason, ChangedAt: at,
	})
	t.Status = next
	t.Version++
	t.LastUpdatedAt = at
	t.LastUpdatedBy = actorID
	return nil
}

// RecordPayment adds amount to Paid and keeps Paid + Remaining = Total.
func (t *Transaction) RecordPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Newf(apperrors.InvalidRequest, "payment amount must be positive, got %s", amount)
	}
	if t.Paid.Add(amount).GreaterThan(t.Total) {
		return apperrors.Newf(apperrors.InvalidRequest, "payment %s exceeds remaining %s", amount, t.Remaining)
	}
	t.Paid = t.Paid.Add(amount)
	t.Remaining = t.Total.Sub(t.Paid)
	return nil
}

// IsCrossCurrency reports whether the transaction converts between currencies.
// SettledAt is when the transaction last reached completed, which is when its
// balances moved. It falls back to the creation time.
func (t Transaction) SettledAt() time.Time {
	for i := len(t.StatusHistory) - 1; i >= 0; i-- {
		if t.StatusHistory[i].To == StatusCompleted {
			return t.StatusHistory[i].ChangedAt
		}
	}
	return t.CreatedAt
}

func (t Transaction) IsCrossCurrency() bool {
	return t.SourceCurrency != t.TargetCurrency
}

// PaymentDirection tells whether a leg brings value in or pays it out.
type PaymentDirection string

const (
	PaymentInbound  PaymentDirection = "inbound"
	PaymentOutbound PaymentDirection = "outbound"
)

// PaymentLeg records one external value flow of a staged transaction.
type PaymentLeg struct {
	LegID         string           `json:"legID"` // Primary Key (e.g., UUID)
	TransactionID string           `json:"transactionID"`
	TenantID      string           `json:"tenantID"`
	Direction     PaymentDirection `json:"direction"`
	Amount        decimal.Decimal  `json:"amount"` // In the transaction's source currency
	Currency      CurrencyCode     `json:"currency"`
	Method        string           `json:"method"`    // cash, bank, wallet...
	ProofRefs     []string         `json:"proofRefs"` // Opaque references to uploaded proof files
	Verified      bool             `json:"verified"`
	VerifiedBy    *string          `json:"verifiedBy,omitempty"`
	VerifiedAt    *time.Time       `json:"verifiedAt,omitempty"`
	AuditFields
}
