package domain

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/shopspring/decimal"
)

// AccountType is the product kind of a customer account.
type AccountType string

const (
	AccountWallet    AccountType = "WALLET"
	AccountSavings   AccountType = "SAVINGS"
	AccountTrading   AccountType = "TRADING"
	AccountCorporate AccountType = "CORPORATE"
)

// IsValid reports whether t is a known account type.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountWallet, AccountSavings, AccountTrading, AccountCorporate:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountPending   AccountStatus = "pending"
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// CanTransitionTo reports whether an account may move from s to next.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	switch s {
	case AccountPending:
		return next == AccountActive || next == AccountClosed
	case AccountActive:
		return next == AccountSuspended || next == AccountClosed
	case AccountSuspended:
		return next == AccountActive || next == AccountClosed
	}
	return false
}

// DeltaKind is the kind of balance mutation applied to a locked account.
type DeltaKind string

const (
	DeltaDebit    DeltaKind = "debit"
	DeltaCredit   DeltaKind = "credit"
	DeltaFreeze   DeltaKind = "freeze"
	DeltaUnfreeze DeltaKind = "unfreeze"
)

// Inverse returns the kind that undoes k.
func (k DeltaKind) Inverse() DeltaKind {
	switch k {
	case DeltaDebit:
		return DeltaCredit
	case DeltaCredit:
		return DeltaDebit
	case DeltaFreeze:
		return DeltaUnfreeze
	default:
		return DeltaFreeze
	}
}

// OverdraftPolicy lets available balance go negative down to -Limit on the total balance.
type OverdraftPolicy struct {
	Enabled bool            `json:"enabled"`
	Limit   decimal.Decimal `json:"limit"`
}

// Account represents a customer account within one tenant.
// Zero daily or monthly limits mean the counter is not capped.
type Account struct {
	AccountID     string          `json:"accountID"`     // Primary Key (e.g., UUID)
	AccountNumber string          `json:"accountNumber"` // Generated, unique
	TenantID      string          `json:"tenantID"`
	OwnerID       string          `json:"ownerID"`
	CurrencyCode  CurrencyCode    `json:"currencyCode"` // Immutable after creation
	AccountType   AccountType     `json:"accountType"`
	Balance       decimal.Decimal `json:"balance"`
	Available     decimal.Decimal `json:"available"`
	Frozen        decimal.Decimal `json:"frozen"`
	DailyUsed     decimal.Decimal `json:"dailyUsed"`
	MonthlyUsed   decimal.Decimal `json:"monthlyUsed"`
	DailyLimit    decimal.Decimal `json:"dailyLimit"`
	MonthlyLimit  decimal.Decimal `json:"monthlyLimit"`
	LastResetAt   time.Time       `json:"lastResetAt"`
	Overdraft     OverdraftPolicy `json:"overdraft"`
	Status        AccountStatus   `json:"status"`
	AuditFields
}

// RolloverLimits zeroes the daily counter when the UTC calendar day has advanced
// since LastResetAt, and the monthly counter when the month has.
func (a *Account) RolloverLimits(now time.Time) {
	now = now.UTC()
	last := a.LastResetAt.UTC()
	ny, nm, nd := now.Date()
	ly, lm, ld := last.Date()
	if ny != ly || nm != lm {
		a.MonthlyUsed = decimal.Zero
		a.DailyUsed = decimal.Zero
	} else if nd != ld {
		a.DailyUsed = decimal.Zero
	}
	if now.After(last) {
		a.LastResetAt = now
	}
}

// ApplyDelta mutates the balances of a locked account. It leaves the account
// untouched and returns a taxonomy error when the mutation would break an invariant.
func (a *Account) ApplyDelta(amount decimal.Decimal, kind DeltaKind, now time.Time) error {
	if err := a.checkMutable(amount); err != nil {
		return err
	}
	switch kind {
	case DeltaDebit:
		a.RolloverLimits(now)
		if a.DailyLimit.IsPositive() && a.DailyUsed.Add(amount).GreaterThan(a.DailyLimit) {
			return apperrors.Newf(apperrors.DailyLimitExceeded, "account %s daily limit %s", a.AccountID, a.DailyLimit)
		}
		if a.MonthlyLimit.IsPositive() && a.MonthlyUsed.Add(amount).GreaterThan(a.MonthlyLimit) {
			return apperrors.Newf(apperrors.MonthlyLimitExceeded, "account %s monthly limit %s", a.AccountID, a.MonthlyLimit)
		}
		if err := a.checkDebit(amount); err != nil {
			return err
		}
		a.Balance = a.Balance.Sub(amount)
		a.Available = a.Available.Sub(amount)
		a.DailyUsed = a.DailyUsed.Add(amount)
		a.MonthlyUsed = a.MonthlyUsed.Add(amount)
	case DeltaCredit:
		a.Balance = a.Balance.Add(amount)
		a.Available = a.Available.Add(amount)
	case DeltaFreeze:
		if a.Available.LessThan(amount) {
			return apperrors.Newf(apperrors.InsufficientAvailable, "account %s cannot freeze %s", a.AccountID, amount)
		}
		a.Available = a.Available.Sub(amount)
		a.Frozen = a.Frozen.Add(amount)
	case DeltaUnfreeze:
		if a.Frozen.LessThan(amount) {
			return apperrors.Newf(apperrors.InsufficientAvailable, "account %s has only %s frozen", a.AccountID, a.Frozen)
		}
		a.Frozen = a.Frozen.Sub(amount)
		a.Available = a.Available.Add(amount)
	default:
		return apperrors.Newf(apperrors.InvalidRequest, "unknown delta kind %q", kind)
	}
	return nil
}

// ApplyReversal undoes an earlier delta of kind applied at appliedAt. A reversed
// debit gives back the limit counters only for the windows it was counted in:
// the daily counter when appliedAt falls on now's UTC day, the monthly counter
// when it falls in now's UTC month. Reversed credits are debited without
// touching the counters.
func (a *Account) ApplyReversal(amount decimal.Decimal, kind DeltaKind, appliedAt, now time.Time) error {
	if err := a.checkMutable(amount); err != nil {
		return err
	}
	switch kind {
	case DeltaDebit:
		a.RolloverLimits(now)
		a.Balance = a.Balance.Add(amount)
		a.Available = a.Available.Add(amount)
		ny, nm, nd := now.UTC().Date()
		ay, am, ad := appliedAt.UTC().Date()
		if ny == ay && nm == am {
			a.MonthlyUsed = decimal.Max(decimal.Zero, a.MonthlyUsed.Sub(amount))
			if nd == ad {
				a.DailyUsed = decimal.Max(decimal.Zero, a.DailyUsed.Sub(amount))
			}
		}
		return nil
	case DeltaCredit:
		if err := a.checkDebit(amount); err != nil {
			return err
		}
		a.Balance = a.Balance.Sub(amount)
		a.Available = a.Available.Sub(amount)
		return nil
	default:
		return a.ApplyDelta(amount, kind.Inverse(), now)
	}
}

func (a *Account) checkMutable(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Newf(apperrors.InvalidRequest, "delta amount must be positive, got %s", amount)
	}
	if a.Status != AccountActive {
		return apperrors.Newf(apperrors.AccountSuspended, "account %s is %s", a.AccountID, a.Status)
	}
	return nil
}

func (a *Account) checkDebit(amount decimal.Decimal) error {
	if !a.Overdraft.Enabled {
		if a.Available.LessThan(amount) {
			return apperrors.Newf(apperrors.InsufficientAvailable, "account %s available %s < %s", a.AccountID, a.Available, amount)
		}
		return nil
	}
	if a.Balance.Sub(amount).LessThan(a.Overdraft.Limit.Neg()) {
		return apperrors.Newf(apperrors.OverdraftLimitExceeded, "account %s overdraft limit %s", a.AccountID, a.Overdraft.Limit)
	}
	return nil
}

// CheckInvariants verifies the balance identities that hold outside a unit of work.
func (a Account) CheckInvariants() error {
	if !a.Balance.Equal(a.Available.Add(a.Frozen)) {
		return apperrors.Newf(apperrors.Internal, "account %s balance %s != available %s + frozen %s", a.AccountID, a.Balance, a.Available, a.Frozen)
	}
	if a.Frozen.IsNegative() {
		return apperrors.Newf(apperrors.Internal, "account %s frozen %s < 0", a.AccountID, a.Frozen)
	}
	if a.Overdraft.Enabled {
		if a.Balance.LessThan(a.Overdraft.Limit.Neg()) {
			return apperrors.Newf(apperrors.Internal, "account %s balance %s beyond overdraft", a.AccountID, a.Balance)
		}
	} else if a.Available.IsNegative() {
		return apperrors.Newf(apperrors.Internal, "account %s available %s < 0", a.AccountID, a.Available)
	}
	return nil
}
