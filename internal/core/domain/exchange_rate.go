package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one row of the append-only rate history. An empty TenantID
// marks a platform-wide rate.
type ExchangeRate struct {
	ExchangeRateID string          `json:"exchangeRateID"` // Primary Key (e.g., UUID)
	TenantID       string          `json:"tenantID"`
	FromCurrency   CurrencyCode    `json:"fromCurrency"`
	ToCurrency     CurrencyCode    `json:"toCurrency"`
	Rate           decimal.Decimal `json:"rate"`
	IsActive       bool            `json:"isActive"`
	EffectiveAt    time.Time       `json:"effectiveAt"`
	Source         string          `json:"source"` // manual, provider...
	AuditFields
}
