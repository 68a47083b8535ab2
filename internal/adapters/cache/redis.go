package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyNamespace = "fxl:rate"

// cmdable is the subset of the redis client the rate cache needs.
type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisRateCache shares resolved rates between replicas.
// Each pair keeps a set of the tenant scopes cached for it so a platform
// publish can drop all of them.
type RedisRateCache struct {
	store cmdable
	ttl   time.Duration
}

var _ portssvc.RateCache = (*RedisRateCache)(nil)

// NewRedisClient parses url and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisRateCache wraps an established client.
func NewRedisRateCache(client *redis.Client, ttl time.Duration) *RedisRateCache {
	return newRedisRateCache(client, ttl)
}

func newRedisRateCache(store cmdable, ttl time.Duration) *RedisRateCache {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &RedisRateCache{store: store, ttl: ttl}
}

func rateKey(from, to domain.CurrencyCode, tenantID string) string {
	scope := tenantID
	if scope == "" {
		scope = "_platform"
	}
	return fmt.Sprintf("%s:%s:%s:%s", keyNamespace, from, to, scope)
}

func scopesKey(from, to domain.CurrencyCode) string {
	return fmt.Sprintf("%s:%s:%s:scopes", keyNamespace, from, to)
}

// Get treats every redis failure as a miss so lookups fall through to the store.
func (c *RedisRateCache) Get(ctx context.Context, from, to domain.CurrencyCode, tenantID string) (decimal.Decimal, bool) {
	raw, err := c.store.Get(ctx, rateKey(from, to, tenantID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.GetLoggerFromCtx(ctx).Warn("Rate cache read failed", slog.String("error", err.Error()))
		}
		return decimal.Decimal{}, false
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		middleware.GetLoggerFromCtx(ctx).Warn("Rate cache holds an unparsable value",
			slog.String("key", rateKey(from, to, tenantID)),
			slog.String("error", err.Error()))
		return decimal.Decimal{}, false
	}
	return rate, true
}

func (c *RedisRateCache) Set(ctx context.Context, from, to domain.CurrencyCode, tenantID string, rate decimal.Decimal) {
	key := rateKey(from, to, tenantID)
	if err := c.store.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
		middleware.GetLoggerFromCtx(ctx).Warn("Rate cache write failed", slog.String("error", err.Error()))
		return
	}
	scopes := scopesKey(from, to)
	if err := c.store.SAdd(ctx, scopes, key).Err(); err != nil {
		middleware.GetLoggerFromCtx(ctx).Warn("Rate cache scope index write failed", slog.String("error", err.Error()))
		return
	}
	_ = c.store.Expire(ctx, scopes, c.ttl).Err()
}

func (c *RedisRateCache) Invalidate(ctx context.Context, from, to domain.CurrencyCode, tenantID string) error {
	if tenantID != "" {
		if err := c.store.Del(ctx, rateKey(from, to, tenantID)).Err(); err != nil {
			return fmt.Errorf("invalidate rate %s/%s for %s: %w", from, to, tenantID, err)
		}
		return nil
	}
	scopes := scopesKey(from, to)
	keys, err := c.store.SMembers(ctx, scopes).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list cached scopes for %s/%s: %w", from, to, err)
	}
	keys = append(keys, rateKey(from, to, ""), scopes)
	if err := c.store.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate rate %s/%s: %w", from, to, err)
	}
	return nil
}
