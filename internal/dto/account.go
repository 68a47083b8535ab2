package dto

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

// OverdraftRequest configures an account's overdraft policy.
type OverdraftRequest struct {
	Enabled bool            `json:"enabled"`
	Limit   decimal.Decimal `json:"limit"`
}

// CreateAccountRequest defines the data needed to open an account.
// Zero limits leave the counter uncapped.
type CreateAccountRequest struct {
	TenantID     string              `json:"tenantID" binding:"required"`
	OwnerID      string              `json:"ownerID" binding:"required"`
	CurrencyCode domain.CurrencyCode `json:"currencyCode" binding:"required"`
	AccountType  domain.AccountType  `json:"accountType" binding:"required,oneof=WALLET SAVINGS TRADING CORPORATE"`
	DailyLimit   decimal.Decimal     `json:"dailyLimit"`
	MonthlyLimit decimal.Decimal     `json:"monthlyLimit"`
	Overdraft    *OverdraftRequest   `json:"overdraft"`
	Pending      bool                `json:"pending"` // Open in pending status, awaiting activation
}

// UpdateAccountLimitsRequest changes limits; nil fields are left untouched.
type UpdateAccountLimitsRequest struct {
	DailyLimit   *decimal.Decimal  `json:"dailyLimit"`
	MonthlyLimit *decimal.Decimal  `json:"monthlyLimit"`
	Overdraft    *OverdraftRequest `json:"overdraft"`
}

// ChangeAccountStatusRequest moves an account through its lifecycle.
type ChangeAccountStatusRequest struct {
	Status domain.AccountStatus `json:"status" binding:"required,oneof=pending active suspended closed"`
	Reason string               `json:"reason" binding:"required,max=512"`
}

// FreezeFundsRequest holds or releases part of an account's available balance.
type FreezeFundsRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required,max=512"`
}

// ListAccountsParams defines query parameters for listing accounts.
type ListAccountsParams struct {
	TenantID  string                `form:"tenantID"`
	OwnerID   *string               `form:"ownerID"`
	Status    *domain.AccountStatus `form:"status"`
	Currency  *domain.CurrencyCode  `form:"currency"`
	Limit     int                   `form:"limit,default=50" binding:"min=0,max=500"`
	NextToken *string               `form:"nextToken"`
}

// AccountResponse mirrors domain.Account.
type AccountResponse struct {
	AccountID     string               `json:"accountID"`
	AccountNumber string               `json:"accountNumber"`
	TenantID      string               `json:"tenantID"`
	OwnerID       string               `json:"ownerID"`
	CurrencyCode  domain.CurrencyCode  `json:"currencyCode"`
	AccountType   domain.AccountType   `json:"accountType"`
	Balance       decimal.Decimal      `json:"balance"`
	Available     decimal.Decimal      `json:"available"`
	Frozen        decimal.Decimal      `json:"frozen"`
	DailyUsed     decimal.Decimal      `json:"dailyUsed"`
	MonthlyUsed   decimal.Decimal      `json:"monthlyUsed"`
	DailyLimit    decimal.Decimal      `json:"dailyLimit"`
	MonthlyLimit  decimal.Decimal      `json:"monthlyLimit"`
	Overdraft     OverdraftRequest     `json:"overdraft"`
	Status        domain.AccountStatus `json:"status"`
	CreatedAt     time.Time            `json:"createdAt"`
	LastUpdatedAt time.Time            `json:"lastUpdatedAt"`
}

// ListAccountsResponse is one page of accounts.
type ListAccountsResponse struct {
	Accounts  []AccountResponse `json:"accounts"`
	NextToken *string           `json:"nextToken,omitempty"`
}

// ToAccountResponse converts a domain.Account to its response DTO.
func ToAccountResponse(acc *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID:     acc.AccountID,
		AccountNumber: acc.AccountNumber,
		TenantID:      acc.TenantID,
		OwnerID:       acc.OwnerID,
		CurrencyCode:  acc.CurrencyCode,
		AccountType:   acc.AccountType,
		Balance:       acc.Balance,
		Available:     acc.Available,
		Frozen:        acc.Frozen,
		DailyUsed:     acc.DailyUsed,
		MonthlyUsed:   acc.MonthlyUsed,
		DailyLimit:    acc.DailyLimit,
		MonthlyLimit:  acc.MonthlyLimit,
		Overdraft:     OverdraftRequest{Enabled: acc.Overdraft.Enabled, Limit: acc.Overdraft.Limit},
		Status:        acc.Status,
		CreatedAt:     acc.CreatedAt,
		LastUpdatedAt: acc.LastUpdatedAt,
	}
}

// ToListAccountResponse converts a page of accounts.
func ToListAccountResponse(accounts []domain.Account, next *string) ListAccountsResponse {
	res := make([]AccountResponse, len(accounts))
	for i := range accounts {
		res[i] = ToAccountResponse(&accounts[i])
	}
	return ListAccountsResponse{Accounts: res, NextToken: next}
}
