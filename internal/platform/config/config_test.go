package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.Set("FIELD_ENCRYPTION_KEY", "field-key-0123456789")
	v.Set("AUDIT_HMAC_KEY", "audit-key-0123456789")
	v.Set("PGSQL_URL", "postgres://localhost/ledger")
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.UoWTimeout)
	assert.Equal(t, 90*24*time.Hour, cfg.AuditRetention)
	assert.Equal(t, 300*time.Second, cfg.RateCacheTTL)
	assert.Equal(t, CacheDriverMemory, cfg.RateCacheDriver)
	assert.Equal(t, 5, cfg.FailedLoginThreshold)
	assert.Equal(t, 10, cfg.FinancialActivityThreshold)
	assert.Equal(t, time.Hour, cfg.DetectionWindow)
	assert.Equal(t, "@every 5m", cfg.DetectionSchedule)
	assert.Equal(t, "@daily", cfg.PurgeSchedule)
	assert.Equal(t, "100-M", cfg.RateLimit)
	assert.Empty(t, cfg.CORSAllowedOrigins)
}

func TestFromViper_Overrides(t *testing.T) {
	cfg, err := FromViper(newViper(map[string]any{
		"MAX_RETRIES":          5,
		"UOW_TIMEOUT_MS":       1500,
		"AUDIT_RETENTION_DAYS": 7,
		"STORE_DRIVER":         "MEMORY",
		"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example,",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 1500*time.Millisecond, cfg.UoWTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.AuditRetention)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestFromViper_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		wantErr   string
	}{
		{"same keys", map[string]any{"AUDIT_HMAC_KEY": "field-key-0123456789"}, "must differ"},
		{"missing hmac key", map[string]any{"AUDIT_HMAC_KEY": ""}, "AUDIT_HMAC_KEY is required"},
		{"missing encryption key", map[string]any{"FIELD_ENCRYPTION_KEY": ""}, "FIELD_ENCRYPTION_KEY is required"},
		{"negative retries", map[string]any{"MAX_RETRIES": -1}, "MAX_RETRIES"},
		{"zero timeout", map[string]any{"UOW_TIMEOUT_MS": 0}, "UOW_TIMEOUT_MS"},
		{"bad duration", map[string]any{"RETRY_BASE_DELAY": "soon"}, "RETRY_BASE_DELAY"},
		{"postgres without url", map[string]any{"PGSQL_URL": ""}, "PGSQL_URL"},
		{"unknown store", map[string]any{"STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"redis without url", map[string]any{"RATE_CACHE_DRIVER": "redis"}, "REDIS_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromViper(newViper(tt.overrides))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
