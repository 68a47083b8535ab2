package dto

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

// PublishRateRequest appends a new active rate. A nil TenantID publishes a platform rate.
type PublishRateRequest struct {
	TenantID     *string             `json:"tenantID"`
	FromCurrency domain.CurrencyCode `json:"fromCurrency" binding:"required,nefield=ToCurrency"`
	ToCurrency   domain.CurrencyCode `json:"toCurrency" binding:"required"`
	Rate         decimal.Decimal     `json:"rate"`
	EffectiveAt  *time.Time          `json:"effectiveAt"` // Defaults to now
	Source       string              `json:"source" binding:"omitempty,max=64"`
}

// RateQuery selects a rate as seen by a tenant at a point in time.
type RateQuery struct {
	From     domain.CurrencyCode `form:"from" binding:"required"`
	To       domain.CurrencyCode `form:"to" binding:"required"`
	TenantID string              `form:"tenantID"`
	At       *time.Time          `form:"at" time_format:"2006-01-02T15:04:05Z07:00"`
}

// RateResponse is a resolved rate.
type RateResponse struct {
	FromCurrency domain.CurrencyCode `json:"fromCurrency"`
	ToCurrency   domain.CurrencyCode `json:"toCurrency"`
	TenantID     string              `json:"tenantID"`
	Rate         decimal.Decimal     `json:"rate"`
	At           time.Time           `json:"at"`
}

// ExchangeRateResponse mirrors one row of the rate history.
type ExchangeRateResponse struct {
	ExchangeRateID string              `json:"exchangeRateID"`
	TenantID       string              `json:"tenantID"`
	FromCurrency   domain.CurrencyCode `json:"fromCurrency"`
	ToCurrency     domain.CurrencyCode `json:"toCurrency"`
	Rate           decimal.Decimal     `json:"rate"`
	IsActive       bool                `json:"isActive"`
	EffectiveAt    time.Time           `json:"effectiveAt"`
	Source         string              `json:"source"`
	CreatedAt      time.Time           `json:"createdAt"`
	CreatedBy      string              `json:"createdBy"`
}

// ToExchangeRateResponse converts a domain.ExchangeRate to its response DTO.
func ToExchangeRateResponse(rate *domain.ExchangeRate) ExchangeRateResponse {
	return ExchangeRateResponse{
		ExchangeRateID: rate.ExchangeRateID,
		TenantID:       rate.TenantID,
		FromCurrency:   rate.FromCurrency,
		ToCurrency:     rate.ToCurrency,
		Rate:           rate.Rate,
		IsActive:       rate.IsActive,
		EffectiveAt:    rate.EffectiveAt,
		Source:         rate.Source,
		CreatedAt:      rate.CreatedAt,
		CreatedBy:      rate.CreatedBy,
	}
}

// RateHistoryParams defines query parameters for the rate history.
type RateHistoryParams struct {
	From     domain.CurrencyCode `form:"from" binding:"required"`
	To       domain.CurrencyCode `form:"to" binding:"required"`
	TenantID string              `form:"tenantID"`
	Limit    int                 `form:"limit,default=50" binding:"min=0,max=500"`
}
