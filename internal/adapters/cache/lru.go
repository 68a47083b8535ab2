package cache

import (
	"context"
	"strings"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
)

// DefaultRateTTL bounds how long a resolved rate may be served without a store read.
const DefaultRateTTL = 300 * time.Second

const defaultLRUSize = 4096

// LRURateCache is an in-process rate cache with per-entry expiry.
type LRURateCache struct {
	entries *expirable.LRU[string, decimal.Decimal]
}

var _ portssvc.RateCache = (*LRURateCache)(nil)

// NewLRURateCache creates a cache holding at most size pairs for ttl each.
// Non-positive arguments fall back to the defaults.
func NewLRURateCache(size int, ttl time.Duration) *LRURateCache {
	if size <= 0 {
		size = defaultLRUSize
	}
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &LRURateCache{entries: expirable.NewLRU[string, decimal.Decimal](size, nil, ttl)}
}

func pairPrefix(from, to domain.CurrencyCode) string {
	return string(from) + ":" + string(to) + ":"
}

func entryKey(from, to domain.CurrencyCode, tenantID string) string {
	return pairPrefix(from, to) + tenantID
}

func (c *LRURateCache) Get(_ context.Context, from, to domain.CurrencyCode, tenantID string) (decimal.Decimal, bool) {
	return c.entries.Get(entryKey(from, to, tenantID))
}

func (c *LRURateCache) Set(_ context.Context, from, to domain.CurrencyCode, tenantID string, rate decimal.Decimal) {
	c.entries.Add(entryKey(from, to, tenantID), rate)
}

// Invalidate drops one tenant's entry, or every tenant's entry for the pair when tenantID is empty.
func (c *LRURateCache) Invalidate(_ context.Context, from, to domain.CurrencyCode, tenantID string) error {
	if tenantID != "" {
		c.entries.Remove(entryKey(from, to, tenantID))
		return nil
	}
	prefix := pairPrefix(from, to)
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
	return nil
}

// Len reports the number of live entries.
func (c *LRURateCache) Len() int {
	return c.entries.Len()
}
