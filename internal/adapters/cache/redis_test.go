package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCmdable struct {
	mu      sync.Mutex
	values  map[string]string
	sets    map[string]map[string]struct{}
	ttls    map[string]time.Duration
	failGet bool
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{
		values: map[string]string{},
		sets:   map[string]map[string]struct{}{},
		ttls:   map[string]time.Duration{},
	}
}

func (f *fakeCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCmdable) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
		if _, ok := f.sets[k]; ok {
			delete(f.sets, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCmdable) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[key]
	if !ok {
		set = map[string]struct{}{}
		f.sets[key] = set
	}
	for _, m := range members {
		set[m.(string)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeCmdable) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeCmdable) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRedisRateCache_RoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	c := newRedisRateCache(fake, 0)

	c.Set(ctx, domain.USD, domain.EUR, "t1", decimal.RequireFromString("0.9512"))
	rate, ok := c.Get(ctx, domain.USD, domain.EUR, "t1")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.9512")))
	assert.Equal(t, DefaultRateTTL, fake.ttls["fxl:rate:USD:EUR:t1"])
	assert.Equal(t, DefaultRateTTL, fake.ttls["fxl:rate:USD:EUR:scopes"])

	_, ok = c.Get(ctx, domain.USD, domain.GBP, "t1")
	assert.False(t, ok)
}

func TestRedisRateCache_PlatformInvalidationDropsEveryScope(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	c := newRedisRateCache(fake, time.Minute)

	c.Set(ctx, domain.USD, domain.EUR, "t1", decimal.RequireFromString("0.95"))
	c.Set(ctx, domain.USD, domain.EUR, "t2", decimal.RequireFromString("0.94"))
	c.Set(ctx, domain.USD, domain.EUR, "", decimal.RequireFromString("0.9"))
	c.Set(ctx, domain.EUR, domain.USD, "t1", decimal.RequireFromString("1.1"))

	require.NoError(t, c.Invalidate(ctx, domain.USD, domain.EUR, "t2"))
	_, ok := c.Get(ctx, domain.USD, domain.EUR, "t2")
	assert.False(t, ok)
	_, ok = c.Get(ctx, domain.USD, domain.EUR, "t1")
	assert.True(t, ok)

	require.NoError(t, c.Invalidate(ctx, domain.USD, domain.EUR, ""))
	for _, tenant := range []string{"t1", "t2", ""} {
		_, ok := c.Get(ctx, domain.USD, domain.EUR, tenant)
		assert.False(t, ok, "scope %q", tenant)
	}
	_, ok = c.Get(ctx, domain.EUR, domain.USD, "t1")
	assert.True(t, ok, "reverse pair is a separate entry")
}

func TestRedisRateCache_ReadFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	c := newRedisRateCache(fake, time.Minute)
	c.Set(ctx, domain.USD, domain.EUR, "t1", decimal.RequireFromString("0.9"))

	fake.failGet = true
	_, ok := c.Get(ctx, domain.USD, domain.EUR, "t1")
	assert.False(t, ok)
}
