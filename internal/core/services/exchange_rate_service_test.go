package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRateCache struct {
	mu          sync.Mutex
	rates       map[string]decimal.Decimal
	invalidated []string
}

func newMapRateCache() *mapRateCache {
	return &mapRateCache{rates: map[string]decimal.Decimal{}}
}

func rateKey(from, to domain.CurrencyCode, tenantID string) string {
	return string(from) + ":" + string(to) + ":" + tenantID
}

func (c *mapRateCache) Get(_ context.Context, from, to domain.CurrencyCode, tenantID string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rates[rateKey(from, to, tenantID)]
	return r, ok
}

func (c *mapRateCache) Set(_ context.Context, from, to domain.CurrencyCode, tenantID string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[rateKey(from, to, tenantID)] = rate
}

func (c *mapRateCache) Invalidate(_ context.Context, from, to domain.CurrencyCode, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, rateKey(from, to, tenantID))
	for k := range c.rates {
		delete(c.rates, k)
	}
	return nil
}

type fixedProvider map[string]decimal.Decimal

func (p fixedProvider) Rate(_ context.Context, from, to domain.CurrencyCode) (decimal.Decimal, error) {
	if r, ok := p[string(from)+string(to)]; ok {
		return r, nil
	}
	return decimal.Decimal{}, services.ErrNoProviderRate
}

func TestGetRate_Precedence(t *testing.T) {
	f := newFixture(t, func(s *services.Settings) {
		s.RateProvider = fixedProvider{"USDGBP": dec("0.8")}
	})
	f.seedRate(domain.USD, domain.EUR, "", "0.9")
	f.seedRate(domain.USD, domain.EUR, "t1", "0.95")

	rate, err := f.svc.ExchangeRate.GetRate(f.ctx, domain.USD, domain.EUR, "t1", time.Time{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.95")), "tenant rate wins")

	rate, err = f.svc.ExchangeRate.GetRate(f.ctx, domain.USD, domain.EUR, "t2", time.Time{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.9")), "platform rate is the fallback")

	rate, err = f.svc.ExchangeRate.GetRate(f.ctx, domain.USD, domain.GBP, "t1", time.Time{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.8")), "provider is the last resort")

	_, err = f.svc.ExchangeRate.GetRate(f.ctx, domain.USD, domain.JPY, "t1", time.Time{})
	assert.Equal(t, apperrors.RateUnavailable, apperrors.KindOf(err))

	rate, err = f.svc.ExchangeRate.GetRate(f.ctx, domain.EUR, domain.EUR, "t1", time.Time{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	_, err = f.svc.ExchangeRate.GetRate(f.ctx, domain.CurrencyCode("XXX"), domain.EUR, "t1", time.Time{})
	assert.Equal(t, apperrors.InvalidCurrency, apperrors.KindOf(err))
}

func TestGetRate_HistoricalLookup(t *testing.T) {
	f := newFixture(t)
	f.seedRate(domain.USD, domain.EUR, "", "0.9")

	_, err := f.svc.ExchangeRate.GetRate(f.ctx, domain.USD, domain.EUR, "", time.Now().Add(-2*time.Hour))
	assert.Equal(t, apperrors.RateUnavailable, apperrors.KindOf(err), "the seeded rate was not yet effective")
}

func TestPublishRate_InvalidatesCache(t *testing.T) {
	cache := newMapRateCache()
	f := newFixture(t, func(s *services.Settings) {
		s.RateCache = cache
	})
	f.seedRate(domain.USD, domain.EUR, "", "0.9")

	rate, err := f.svc.ExchangeRate.GetRate(f.ctx, domain.USD, domain.EUR, "t1", time.Time{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.9")))
	cached, ok := cache.Get(f.ctx, domain.USD, domain.EUR, "t1")
	require.True(t, ok)
	assert.True(t, cached.Equal(dec("0.9")))

	_, err = f.svc.ExchangeRate.PublishRate(f.ctx, f.admin1, dto.PublishRateRequest{
		TenantID: strPtr("t1"), FromCurrency: domain.USD, ToCurrency: domain.EUR, Rate: dec("0.97"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"USD:EUR:t1"}, cache.invalidated)

	rate, err = f.svc.ExchangeRate.GetRate(f.ctx, domain.USD, domain.EUR, "t1", time.Time{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.97")))
	assert.Len(t, f.events(domain.EventRatePublished), 1)
}

func TestPublishRate_Guards(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ExchangeRate.PublishRate(f.ctx, f.admin1, dto.PublishRateRequest{FromCurrency: domain.USD, ToCurrency: domain.EUR, Rate: dec("1.1")})
	assert.Equal(t, apperrors.PermissionDenied, apperrors.KindOf(err), "platform rates are super-only")

	_, err = f.svc.ExchangeRate.PublishRate(f.ctx, f.admin1, dto.PublishRateRequest{TenantID: strPtr("t1"), FromCurrency: domain.USD, ToCurrency: domain.EUR, Rate: dec("0")})
	assert.Equal(t, apperrors.InvalidRequest, apperrors.KindOf(err))

	_, err = f.svc.ExchangeRate.PublishRate(f.ctx, f.admin1, dto.PublishRateRequest{TenantID: strPtr("t2"), FromCurrency: domain.USD, ToCurrency: domain.EUR, Rate: dec("1.1")})
	assert.Equal(t, apperrors.PermissionDenied, apperrors.KindOf(err))

	_, err = f.svc.ExchangeRate.PublishRate(f.ctx, f.super, dto.PublishRateRequest{FromCurrency: domain.USD, ToCurrency: domain.EUR, Rate: dec("1.1")})
	require.NoError(t, err)
}
