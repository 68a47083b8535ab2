package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver:        config.StoreDriverMemory,
		MaxRetries:         3,
		RetryBaseDelay:     time.Millisecond,
		UoWTimeout:         time.Second,
		AuditRetention:     24 * time.Hour,
		FieldEncryptionKey: "field-key-0123456789",
		AuditHMACKey:       "audit-key-0123456789",
		RateCacheTTL:       time.Minute,
		RateCacheDriver:    config.CacheDriverMemory,
		FXStaticRates:      "USD:EUR=0.9",
		DetectionWindow:    time.Hour,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_MemoryStore(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	rt, err := Open(ctx, memoryConfig(), discardLogger(), Options{Registry: reg})
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()

	require.NotNil(t, rt.Services)
	assert.NotNil(t, rt.Services.Ledger)
	assert.NotNil(t, rt.Services.Detection)

	// The static provider answers when no published rate exists. A zero time
	// asks for the current rate, which goes through the cache.
	rate, err := rt.Services.ExchangeRate.GetRate(ctx, domain.USD, domain.EUR, "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "0.9", rate.String())
	_, err = rt.Services.ExchangeRate.GetRate(ctx, domain.USD, domain.EUR, "", time.Time{})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	lookups := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "ledger_rate_cache_lookups_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				lookups[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"miss": 1, "hit": 1}, lookups)
}

func TestOpen_InvalidStaticRates(t *testing.T) {
	cfg := memoryConfig()
	cfg.FXStaticRates = "USD:USD=1"
	_, err := Open(context.Background(), cfg, discardLogger(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FX_STATIC_RATES")
}

func TestOpen_SameKeysRejected(t *testing.T) {
	cfg := memoryConfig()
	cfg.AuditHMACKey = cfg.FieldEncryptionKey
	_, err := Open(context.Background(), cfg, discardLogger(), Options{})
	require.Error(t, err)
}
