package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SscSPs/fx_ledger/internal/handlers"
	"github.com/SscSPs/fx_ledger/internal/metrics"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/SscSPs/fx_ledger/internal/platform/bootstrap"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
	"github.com/SscSPs/fx_ledger/internal/scheduler"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := bootstrap.NewRegistry()
	rt, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Options{Migrate: true, Registry: reg})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.Error("Error releasing resources", slog.String("error", cerr.Error()))
		}
	}()

	router, err := newRouter(cfg, rt, reg, logger)
	if err != nil {
		return err
	}
	router.GET("/metrics", metrics.Handler(reg))

	jobs := scheduler.NewJobs(rt.Services.Detection, rt.Services.Audit, metrics.NewCronJobMetrics(reg), logger, scheduler.Config{
		DetectionSchedule: cfg.DetectionSchedule,
		PurgeSchedule:     cfg.PurgeSchedule,
		AuditRetention:    cfg.AuditRetention,
	})
	sched := scheduler.NewScheduler(jobs, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() {
		<-sched.Stop().Done()
		logger.Info("Scheduler stopped")
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, rt *bootstrap.Runtime, reg *prometheus.Registry, logger *slog.Logger) (*gin.Engine, error) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery(), httpMetrics.Middleware())

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	apiLimiter := limiter.New(limitermemory.NewStore(), rate)

	handlers.RegisterRoutes(r, cfg, rt.Services, middleware.RateLimit(apiLimiter))
	return r, nil
}
