package fxrates

import (
	"context"
	"fmt"
	"strings"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/core/services"
	"github.com/shopspring/decimal"
)

// StaticProvider quotes a fixed table of pairs, usually loaded from configuration.
type StaticProvider struct {
	rates map[string]decimal.Decimal
}

var _ portssvc.RateProvider = (*StaticProvider)(nil)

func pairKey(from, to domain.CurrencyCode) string {
	return string(from) + ":" + string(to)
}

// ParseStaticRates reads a comma separated list of FROM:TO=rate quotes,
// e.g. "USD:EUR=0.9,USD:GBP=0.79". Blank input yields an empty provider.
func ParseStaticRates(quotes string) (*StaticProvider, error) {
	p := &StaticProvider{rates: map[string]decimal.Decimal{}}
	for _, item := range strings.Split(quotes, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pair, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("rate quote %q: missing '='", item)
		}
		fromCode, toCode, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("rate quote %q: pair must be FROM:TO", item)
		}
		from := domain.CurrencyCode(strings.ToUpper(strings.TrimSpace(fromCode)))
		to := domain.CurrencyCode(strings.ToUpper(strings.TrimSpace(toCode)))
		if !from.IsValid() || !to.IsValid() {
			return nil, fmt.Errorf("rate quote %q: unsupported currency", item)
		}
		if from == to {
			return nil, fmt.Errorf("rate quote %q: currencies must differ", item)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rate quote %q: %w", item, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate quote %q: rate must be positive", item)
		}
		p.rates[pairKey(from, to)] = rate
	}
	return p, nil
}

// Rate returns the configured quote or services.ErrNoProviderRate.
func (p *StaticProvider) Rate(_ context.Context, from, to domain.CurrencyCode) (decimal.Decimal, error) {
	if rate, ok := p.rates[pairKey(from, to)]; ok {
		return rate, nil
	}
	return decimal.Decimal{}, services.ErrNoProviderRate
}

// Len reports how many pairs are quoted.
func (p *StaticProvider) Len() int {
	return len(p.rates)
}
