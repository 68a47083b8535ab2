package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// ExchangeRateReader defines read operations for the rate history.
type ExchangeRateReader interface {
	// FindActiveRate returns the most recent active rate effective at or before at
	// for the exact tenant scope ("" for platform rates).
	FindActiveRate(ctx context.Context, from, to domain.CurrencyCode, tenantID string, at time.Time) (*domain.ExchangeRate, error)
	ListRateHistory(ctx context.Context, from, to domain.CurrencyCode, tenantID string, limit int) ([]domain.ExchangeRate, error)
}

// ExchangeRateWriter appends rates. Rates are never updated.
type ExchangeRateWriter interface {
	SaveExchangeRate(ctx context.Context, rate domain.ExchangeRate) error
}

// ExchangeRateRepositoryFacade combines all exchange rate repository interfaces.
type ExchangeRateRepositoryFacade interface {
	ExchangeRateReader
	ExchangeRateWriter
}
