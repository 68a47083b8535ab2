package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ErrNoProviderRate is returned by providers that do not quote a pair.
var ErrNoProviderRate = errors.New("provider has no rate for pair")

// exchangeRateService resolves and publishes rates.
type exchangeRateService struct {
	BaseService
	store    portsrepo.UnitOfWorkStore
	cache    portssvc.RateCache
	provider portssvc.RateProvider
	authz    portssvc.AuthorizationSvc
	audit    portssvc.AuditWriterSvc
	observer portssvc.Observer
	group    singleflight.Group
}

// ExchangeRateOption configures the rate service.
type ExchangeRateOption func(*exchangeRateService)

// WithRateCache plugs a cache for current-rate lookups.
func WithRateCache(cache portssvc.RateCache) ExchangeRateOption {
	return func(s *exchangeRateService) {
		s.cache = cache
	}
}

// WithRateProvider sets the fallback consulted when no stored rate exists.
func WithRateProvider(provider portssvc.RateProvider) ExchangeRateOption {
	return func(s *exchangeRateService) {
		s.provider = provider
	}
}

// WithRateObserver reports cache hits and misses.
func WithRateObserver(o portssvc.Observer) ExchangeRateOption {
	return func(s *exchangeRateService) {
		s.observer = o
	}
}

// WithRateClock overrides the time source.
func WithRateClock(clock func() time.Time) ExchangeRateOption {
	return func(s *exchangeRateService) {
		s.Clock = clock
	}
}

// NewExchangeRateService creates the rate service.
func NewExchangeRateService(store portsrepo.UnitOfWorkStore, authz portssvc.AuthorizationSvc, audit portssvc.AuditWriterSvc, options ...ExchangeRateOption) portssvc.ExchangeRateSvcFacade {
	svc := &exchangeRateService{
		store:    store,
		cache:    nopRateCache{},
		authz:    authz,
		audit:    audit,
		observer: portssvc.NopObserver{},
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.ExchangeRateSvcFacade = (*exchangeRateService)(nil)

type nopRateCache struct{}

func (nopRateCache) Get(context.Context, domain.CurrencyCode, domain.CurrencyCode, string) (decimal.Decimal, bool) {
	return decimal.Decimal{}, false
}
func (nopRateCache) Set(context.Context, domain.CurrencyCode, domain.CurrencyCode, string, decimal.Decimal) {
}
func (nopRateCache) Invalidate(context.Context, domain.CurrencyCode, domain.CurrencyCode, string) error {
	return nil
}

func (s *exchangeRateService) GetRate(ctx context.Context, from, to domain.CurrencyCode, tenantID string, at time.Time) (decimal.Decimal, error) {
	if !from.IsValid() {
		return decimal.Decimal{}, apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency %q", from)
	}
	if !to.IsValid() {
		return decimal.Decimal{}, apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency %q", to)
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	// Historical lookups bypass the cache.
	if !at.IsZero() {
		return s.resolve(ctx, from, to, tenantID, at.UTC())
	}

	if rate, ok := s.cache.Get(ctx, from, to, tenantID); ok {
		s.observer.ObserveRateLookup("hit")
		return rate, nil
	}
	s.observer.ObserveRateLookup("miss")

	key := string(from) + ":" + string(to) + ":" + tenantID
	v, err, _ := s.group.Do(key, func() (any, error) {
		rate, err := s.resolve(ctx, from, to, tenantID, s.now())
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, from, to, tenantID, rate)
		return rate, nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.(decimal.Decimal), nil
}

// resolve walks tenant rate, platform rate, then provider.
func (s *exchangeRateService) resolve(ctx context.Context, from, to domain.CurrencyCode, tenantID string, at time.Time) (decimal.Decimal, error) {
	scopes := []string{tenantID}
	if tenantID != "" {
		scopes = append(scopes, "")
	}
	for _, scope := range scopes {
		rate, err := s.store.ExchangeRates().FindActiveRate(ctx, from, to, scope, at)
		if err == nil {
			if !rate.Rate.IsPositive() {
				return decimal.Decimal{}, apperrors.Newf(apperrors.RateUnavailable, "stored rate %s/%s is not positive", from, to)
			}
			return rate.Rate, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to read exchange rate",
				slog.String("from", string(from)),
				slog.String("to", string(to)))
			return decimal.Decimal{}, fmt.Errorf("failed to read exchange rate: %w", err)
		}
	}

	if s.provider != nil {
		rate, err := s.provider.Rate(ctx, from, to)
		if err == nil && rate.IsPositive() {
			return rate, nil
		}
		if err != nil && !errors.Is(err, ErrNoProviderRate) {
			s.LogWarn(ctx, err, "Rate provider failed",
				slog.String("from", string(from)),
				slog.String("to", string(to)))
		}
	}
	return decimal.Decimal{}, apperrors.Newf(apperrors.RateUnavailable, "no rate for %s/%s", from, to)
}

func (s *exchangeRateService) RateHistory(ctx context.Context, actor domain.Actor, from, to domain.CurrencyCode, tenantID string, limit int) ([]domain.ExchangeRate, error) {
	var tenants []string
	if tenantID != "" {
		tenants = append(tenants, tenantID)
	}
	if err := s.authz.Authorize(ctx, actor, domain.OpReadRate, tenants...); err != nil {
		return nil, err
	}
	if !from.IsValid() || !to.IsValid() {
		return nil, apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency pair %s/%s", from, to)
	}
	rates, err := s.store.ExchangeRates().ListRateHistory(ctx, from, to, tenantID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list rate history: %w", err)
	}
	return rates, nil
}

func (s *exchangeRateService) PublishRate(ctx context.Context, actor domain.Actor, req dto.PublishRateRequest) (*domain.ExchangeRate, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	if !req.FromCurrency.IsValid() || !req.ToCurrency.IsValid() {
		return nil, apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency pair %s/%s", req.FromCurrency, req.ToCurrency)
	}
	if !req.Rate.IsPositive() {
		return nil, apperrors.New(apperrors.InvalidRequest, "exchange rate must be positive")
	}

	tenantID := derefOr(req.TenantID, "")
	if tenantID == "" {
		if !actor.IsSuper() {
			return nil, s.authz.Deny(ctx, actor, domain.OpPublishRate, "exchange_rate", "", "platform rates require super role")
		}
		if err := s.authz.Authorize(ctx, actor, domain.OpPublishRate); err != nil {
			return nil, err
		}
	} else if err := s.authz.Authorize(ctx, actor, domain.OpPublishRate, tenantID); err != nil {
		return nil, err
	}

	now := s.now()
	effective := now
	if req.EffectiveAt != nil {
		effective = req.EffectiveAt.UTC().Truncate(time.Microsecond)
	}
	source := req.Source
	if source == "" {
		source = "manual"
	}
	rate := domain.ExchangeRate{
		ExchangeRateID: uuid.NewString(),
		TenantID:       tenantID,
		FromCurrency:   req.FromCurrency,
		ToCurrency:     req.ToCurrency,
		Rate:           req.Rate,
		IsActive:       true,
		EffectiveAt:    effective,
		Source:         source,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actor.UserID,
			LastUpdatedAt: now,
			LastUpdatedBy: actor.UserID,
		},
	}

	var auditTenant *string
	if tenantID != "" {
		auditTenant = strPtr(tenantID)
	}
	err := withinTx(ctx, s.store, func(ctx context.Context, tx portsrepo.Store) error {
		if err := tx.ExchangeRates().SaveExchangeRate(ctx, rate); err != nil {
			return fmt.Errorf("failed to save exchange rate: %w", err)
		}
		_, err := s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventRatePublished,
			Severity:     domain.SeverityMedium,
			Actor:        &actor,
			TenantID:     auditTenant,
			Action:       domain.OpPublishRate.Name,
			ResourceKind: "exchange_rate",
			ResourceID:   rate.ExchangeRateID,
			Details: map[string]any{
				"from":        string(rate.FromCurrency),
				"to":          string(rate.ToCurrency),
				"rate":        rate.Rate.String(),
				"effectiveAt": rate.EffectiveAt.Format(time.RFC3339Nano),
			},
		})
		return err
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to publish exchange rate",
			slog.String("from", string(req.FromCurrency)),
			slog.String("to", string(req.ToCurrency)))
		return nil, err
	}

	// Readers must not see the superseded rate once the publish has returned.
	if err := s.cache.Invalidate(ctx, rate.FromCurrency, rate.ToCurrency, tenantID); err != nil {
		s.LogError(ctx, err, "Failed to invalidate rate cache",
			slog.String("from", string(rate.FromCurrency)),
			slog.String("to", string(rate.ToCurrency)))
	}
	s.LogInfo(ctx, "Exchange rate published",
		slog.String("exchange_rate_id", rate.ExchangeRateID),
		slog.String("pair", string(rate.FromCurrency)+"/"+string(rate.ToCurrency)),
		slog.String("tenant_id", tenantID))
	return &rate, nil
}
