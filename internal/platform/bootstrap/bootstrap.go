// Package bootstrap assembles the store, adapters and services from configuration.
// The service binary and the operator CLI share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SscSPs/fx_ledger/internal/adapters/alerting"
	"github.com/SscSPs/fx_ledger/internal/adapters/cache"
	"github.com/SscSPs/fx_ledger/internal/adapters/fxrates"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/core/services"
	"github.com/SscSPs/fx_ledger/internal/metrics"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
	"github.com/SscSPs/fx_ledger/internal/repositories/database/memory"
	"github.com/SscSPs/fx_ledger/internal/repositories/database/pgsql"
	"github.com/SscSPs/fx_ledger/migrations"
	"github.com/SscSPs/fx_ledger/pkg/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
)

// Options selects the optional parts of the runtime.
type Options struct {
	// Migrate applies the embedded schema before the pool is opened.
	Migrate bool
	// Registry receives the ledger metrics. Nil disables them.
	Registry *prometheus.Registry
	// Store overrides the configured store; used by tests.
	Store portsrepo.UnitOfWorkStore
}

// Runtime is a fully wired service container and the resources behind it.
type Runtime struct {
	Config   *config.Config
	Store    portsrepo.UnitOfWorkStore
	Services *portssvc.ServiceContainer
	Logger   *slog.Logger

	closers []func() error
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Open builds the runtime. On error every resource opened so far is released.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close())
			rt = nil
		}
	}()

	if rt.Store, err = rt.openStore(ctx, opts); err != nil {
		return rt, err
	}
	settings, err := rt.settings(ctx, opts)
	if err != nil {
		return rt, err
	}
	if rt.Services, err = services.NewContainer(rt.Store, settings); err != nil {
		return rt, fmt.Errorf("failed to build services: %w", err)
	}
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, opts Options) (portsrepo.UnitOfWorkStore, error) {
	if opts.Store != nil {
		return opts.Store, nil
	}
	cfg := rt.Config
	if cfg.StoreDriver == config.StoreDriverMemory {
		rt.Logger.Info("Using in-memory store")
		return memory.NewStore(memory.NewDB()), nil
	}

	if opts.Migrate {
		res, err := database.RunMigrations(cfg.DatabaseURL, migrations.FS, rt.Logger)
		if err != nil {
			return nil, err
		}
		rt.Logger.Info("Schema ready", slog.Uint64("version", uint64(res.Version)), slog.Bool("changed", res.Changed))
	}
	pool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, database.PoolOptions{Ping: cfg.EnableDBCheck})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() error {
		database.ClosePgxPool(pool)
		return nil
	})
	return pgsql.NewStore(pool), nil
}

// settings maps configuration onto the service settings and opens the adapters.
func (rt *Runtime) settings(ctx context.Context, opts Options) (services.Settings, error) {
	cfg := rt.Config
	s := services.Settings{
		HMACKey:              []byte(cfg.AuditHMACKey),
		EncryptionKey:        cfg.FieldEncryptionKey,
		MaxRetries:           cfg.MaxRetries,
		RetryBase:            cfg.RetryBaseDelay,
		UoWTimeout:           cfg.UoWTimeout,
		FailedLoginThreshold: cfg.FailedLoginThreshold,
		FinancialThreshold:   cfg.FinancialActivityThreshold,
		DetectionWindow:      cfg.DetectionWindow,
	}
	if opts.Registry != nil {
		s.Observer = metrics.NewLedgerMetrics(opts.Registry)
	}

	switch cfg.RateCacheDriver {
	case config.CacheDriverRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return s, err
		}
		rt.closers = append(rt.closers, client.Close)
		s.RateCache = cache.NewRedisRateCache(client, cfg.RateCacheTTL)
	default:
		s.RateCache = cache.NewLRURateCache(0, cfg.RateCacheTTL)
	}

	provider, err := fxrates.ParseStaticRates(cfg.FXStaticRates)
	if err != nil {
		return s, fmt.Errorf("invalid FX_STATIC_RATES: %w", err)
	}
	if provider.Len() > 0 {
		s.RateProvider = provider
	}

	sinks := alerting.FanoutSink{alerting.NewLogSink(nil)}
	if cfg.AMQPURL != "" {
		amqpSink, err := alerting.NewAMQPSink(cfg.AMQPURL, cfg.AlertExchange)
		if err != nil {
			return s, err
		}
		rt.closers = append(rt.closers, amqpSink.Close)
		sinks = append(sinks, amqpSink)
	}
	s.AlertSink = sinks
	return s, nil
}

// Close releases every resource in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	rt.closers = nil
	return err
}
