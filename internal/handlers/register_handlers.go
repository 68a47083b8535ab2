package handlers

import (
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces.
// extra runs on the authenticated group after the actor is resolved (rate limiting, for instance).
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	extra ...gin.HandlerFunc,
) {
	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	setupAPIV1Routes(r, cfg, services, extra)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	service *portssvc.ServiceContainer,
	extra []gin.HandlerFunc,
) {
	chain := append([]gin.HandlerFunc{middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer, service.User, service.Audit)}, extra...)
	v1 := r.Group("/api/v1", chain...)

	RegisterTenantRoutes(v1, service.Tenant)
	RegisterUserRoutes(v1, service.User)
	RegisterAccountRoutes(v1, service.Account)
	RegisterLedgerRoutes(v1, service.Ledger, service.Journal)
	RegisterJournalRoutes(v1, service.Journal)
	RegisterAuditRoutes(v1, service.Audit)
	RegisterExchangeRateRoutes(v1, service.ExchangeRate, service.Authorization)
}
