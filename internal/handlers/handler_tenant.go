package handlers

import (
	"net/http"

	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/gin-gonic/gin"
)

type tenantHandler struct {
	tenantService portssvc.TenantSvcFacade
}

// RegisterTenantRoutes registers routes for the tenant hierarchy.
func RegisterTenantRoutes(rg *gin.RouterGroup, tenantService portssvc.TenantSvcFacade) {
	h := &tenantHandler{tenantService: tenantService}

	tenants := rg.Group("/tenants")
	{
		tenants.POST("", h.createTenant)
		tenants.GET("", h.listTenants)
		tenants.GET("/:tenantID", h.getTenant)
		tenants.POST("/:tenantID/move", h.moveTenant)
		tenants.DELETE("/:tenantID", h.deactivateTenant)
	}
}

func (h *tenantHandler) createTenant(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	tenant, err := h.tenantService.CreateTenant(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Failed to create tenant")
		return
	}
	c.JSON(http.StatusCreated, dto.ToTenantResponse(tenant))
}

// listTenants returns every tenant the actor can read.
func (h *tenantHandler) listTenants(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tenants, err := h.tenantService.ListTenants(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err, "Failed to list tenants")
		return
	}
	c.JSON(http.StatusOK, dto.ToListTenantResponse(tenants))
}

func (h *tenantHandler) getTenant(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tenant, err := h.tenantService.GetTenant(c.Request.Context(), actor, c.Param("tenantID"))
	if err != nil {
		respondError(c, err, "Failed to get tenant")
		return
	}
	c.JSON(http.StatusOK, dto.ToTenantResponse(tenant))
}

func (h *tenantHandler) moveTenant(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.MoveTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	tenant, err := h.tenantService.MoveTenant(c.Request.Context(), actor, c.Param("tenantID"), req)
	if err != nil {
		respondError(c, err, "Failed to move tenant")
		return
	}
	c.JSON(http.StatusOK, dto.ToTenantResponse(tenant))
}

func (h *tenantHandler) deactivateTenant(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	if err := h.tenantService.DeactivateTenant(c.Request.Context(), actor, c.Param("tenantID")); err != nil {
		respondError(c, err, "Failed to deactivate tenant")
		return
	}
	c.Status(http.StatusNoContent)
}
