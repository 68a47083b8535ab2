package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Rate cache drivers.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool
	StoreDriver   string

	JWTSecret string
	JWTIssuer string

	// Unit of work
	MaxRetries     int
	RetryBaseDelay time.Duration
	UoWTimeout     time.Duration

	// Audit
	AuditRetention     time.Duration
	FieldEncryptionKey string
	AuditHMACKey       string

	// FX rates
	RateCacheTTL    time.Duration
	RateCacheDriver string
	RedisURL        string
	FXStaticRates   string

	// Alerting
	AMQPURL       string
	AlertExchange string

	// Detection
	FailedLoginThreshold       int
	FinancialActivityThreshold int
	DetectionWindow            time.Duration
	DetectionSchedule          string
	PurgeSchedule              string

	// HTTP
	RateLimit          string
	CORSAllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("ENABLE_DB_CHECK", false)
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "fx-ledger")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("RETRY_BASE_DELAY", "100ms")
	v.SetDefault("UOW_TIMEOUT_MS", 30000)
	v.SetDefault("AUDIT_RETENTION_DAYS", 90)
	v.SetDefault("FIELD_ENCRYPTION_KEY", "")
	v.SetDefault("AUDIT_HMAC_KEY", "")
	v.SetDefault("RATE_CACHE_TTL", "300s")
	v.SetDefault("RATE_CACHE_DRIVER", CacheDriverMemory)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("FX_STATIC_RATES", "")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("ALERT_EXCHANGE", "ledger.alerts")
	v.SetDefault("FAILED_LOGIN_THRESHOLD", 5)
	v.SetDefault("FINANCIAL_ACTIVITY_THRESHOLD", 10)
	v.SetDefault("DETECTION_WINDOW", "60m")
	v.SetDefault("DETECTION_SCHEDULE", "@every 5m")
	v.SetDefault("PURGE_SCHEDULE", "@daily")
	v.SetDefault("RATE_LIMIT", "100-M")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper reads and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:        v.GetString("PGSQL_URL"),
		Port:               v.GetString("PORT"),
		IsProduction:       v.GetBool("IS_PRODUCTION"),
		EnableDBCheck:      v.GetBool("ENABLE_DB_CHECK"),
		StoreDriver:        strings.ToLower(v.GetString("STORE_DRIVER")),
		JWTSecret:          v.GetString("JWT_SECRET"),
		JWTIssuer:          v.GetString("JWT_ISSUER"),
		MaxRetries:         v.GetInt("MAX_RETRIES"),
		UoWTimeout:         time.Duration(v.GetInt64("UOW_TIMEOUT_MS")) * time.Millisecond,
		AuditRetention:     time.Duration(v.GetInt("AUDIT_RETENTION_DAYS")) * 24 * time.Hour,
		FieldEncryptionKey: v.GetString("FIELD_ENCRYPTION_KEY"),
		AuditHMACKey:       v.GetString("AUDIT_HMAC_KEY"),
		RateCacheDriver:    strings.ToLower(v.GetString("RATE_CACHE_DRIVER")),
		RedisURL:           v.GetString("REDIS_URL"),
		FXStaticRates:      v.GetString("FX_STATIC_RATES"),
		AMQPURL:            v.GetString("AMQP_URL"),
		AlertExchange:      v.GetString("ALERT_EXCHANGE"),

		FailedLoginThreshold:       v.GetInt("FAILED_LOGIN_THRESHOLD"),
		FinancialActivityThreshold: v.GetInt("FINANCIAL_ACTIVITY_THRESHOLD"),
		DetectionSchedule:          v.GetString("DETECTION_SCHEDULE"),
		PurgeSchedule:              v.GetString("PURGE_SCHEDULE"),
		RateLimit:                  v.GetString("RATE_LIMIT"),
		CORSAllowedOrigins:         splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	var err error
	if cfg.RetryBaseDelay, err = parseDuration(v, "RETRY_BASE_DELAY"); err != nil {
		return nil, err
	}
	if cfg.RateCacheTTL, err = parseDuration(v, "RATE_CACHE_TTL"); err != nil {
		return nil, err
	}
	if cfg.DetectionWindow, err = parseDuration(v, "DETECTION_WINDOW"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.warn()
	return cfg, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	case c.UoWTimeout <= 0:
		return errors.New("UOW_TIMEOUT_MS must be positive")
	case c.AuditRetention <= 0:
		return errors.New("AUDIT_RETENTION_DAYS must be positive")
	case c.FieldEncryptionKey == "":
		return errors.New("FIELD_ENCRYPTION_KEY is required")
	case c.AuditHMACKey == "":
		return errors.New("AUDIT_HMAC_KEY is required")
	case c.FieldEncryptionKey == c.AuditHMACKey:
		return errors.New("AUDIT_HMAC_KEY must differ from FIELD_ENCRYPTION_KEY")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("PGSQL_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.RateCacheDriver {
	case CacheDriverRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis rate cache")
		}
	case CacheDriverMemory:
	default:
		return fmt.Errorf("unknown RATE_CACHE_DRIVER %q", c.RateCacheDriver)
	}
	return nil
}

func (c *Config) warn() {
	if c.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set; bearer authentication will reject every request")
	}
	if c.AMQPURL == "" {
		slog.Warn("AMQP_URL not set; high severity alerts go to the log only")
	}
	if c.StoreDriver == StoreDriverMemory {
		slog.Warn("memory store selected; state is lost on restart")
	}
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s (%q): %w", key, raw, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
