package services

import (
	"context"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/shopspring/decimal"
)

// RateProvider is the injected fallback source consulted when no stored rate exists.
type RateProvider interface {
	Rate(ctx context.Context, from, to domain.CurrencyCode) (decimal.Decimal, error)
}

// RateCache caches resolved rates keyed by (from, to, tenant).
type RateCache interface {
	Get(ctx context.Context, from, to domain.CurrencyCode, tenantID string) (decimal.Decimal, bool)
	Set(ctx context.Context, from, to domain.CurrencyCode, tenantID string, rate decimal.Decimal)
	// Invalidate drops the pair for tenantID; an empty tenantID drops it for every tenant.
	Invalidate(ctx context.Context, from, to domain.CurrencyCode, tenantID string) error
}

// ExchangeRateReaderSvc resolves rates.
type ExchangeRateReaderSvc interface {
	// GetRate returns the most recent active rate at time at: tenant rate, then
	// platform rate, then the provider. Same-currency pairs resolve to 1.
	GetRate(ctx context.Context, from, to domain.CurrencyCode, tenantID string, at time.Time) (decimal.Decimal, error)
	RateHistory(ctx context.Context, actor domain.Actor, from, to domain.CurrencyCode, tenantID string, limit int) ([]domain.ExchangeRate, error)
}

// ExchangeRateWriterSvc appends rates.
type ExchangeRateWriterSvc interface {
	PublishRate(ctx context.Context, actor domain.Actor, req dto.PublishRateRequest) (*domain.ExchangeRate, error)
}

// ExchangeRateSvcFacade combines all rate service interfaces.
type ExchangeRateSvcFacade interface {
	ExchangeRateReaderSvc
	ExchangeRateWriterSvc
}
