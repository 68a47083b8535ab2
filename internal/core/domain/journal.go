package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountClass is the accounting class of a journal account code.
type AccountClass string

const (
	Asset     AccountClass = "ASSET"
	Liability AccountClass = "LIABILITY"
	Equity    AccountClass = "EQUITY"
	Revenue   AccountClass = "REVENUE"
	Expense   AccountClass = "EXPENSE"
)

// IsDebitNormal reports whether the class grows with debits.
func (c AccountClass) IsDebitNormal() bool {
	return c == Asset || c == Expense
}

// JournalEntry is one debit or credit line derived from a Transaction.
// Exactly one of Debit and Credit is non-zero.
type JournalEntry struct {
	EntryID       string          `json:"entryID"` // Primary Key (e.g., UUID)
	TenantID      string          `json:"tenantID"`
	TransactionID string          `json:"transactionID"`
	AccountCode   string          `json:"accountCode"`
	AccountClass  AccountClass    `json:"accountClass"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Currency      CurrencyCode    `json:"currency"`
	Description   string          `json:"description"`
	ReversalOf    *string         `json:"reversalOf,omitempty"` // Transaction being reversed
	CreatedAt     time.Time       `json:"createdAt"`
}

// IsReversal reports whether the entry reverses an earlier transaction.
func (e JournalEntry) IsReversal() bool {
	return e.ReversalOf != nil
}

// Amount returns the non-zero side of the entry.
func (e JournalEntry) Amount() decimal.Decimal {
	if e.Debit.IsPositive() {
		return e.Debit
	}
	return e.Credit
}

// TrialBalanceRow is the sum of debits and credits for one class in one currency.
type TrialBalanceRow struct {
	Currency     CurrencyCode    `json:"currency"`
	AccountClass AccountClass    `json:"accountClass"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
}

// CurrencyTrialBalance is the verified identity for one currency.
type CurrencyTrialBalance struct {
	Currency   CurrencyCode                     `json:"currency"`
	Classes    map[AccountClass]decimal.Decimal `json:"classes"`    // Signed, normal side positive
	DebitSide  decimal.Decimal                  `json:"debitSide"`  // assets + expenses
	CreditSide decimal.Decimal                  `json:"creditSide"` // liabilities + equity + revenue
	Difference decimal.Decimal                  `json:"difference"`
	Balanced   bool                             `json:"balanced"`
}

// TrialBalance is the per-currency trial balance of one tenant.
type TrialBalance struct {
	TenantID    string                 `json:"tenantID"`
	GeneratedAt time.Time              `json:"generatedAt"`
	Currencies  []CurrencyTrialBalance `json:"currencies"`
	Balanced    bool                   `json:"balanced"`
}
