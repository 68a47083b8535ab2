package handlers

import (
	"net/http"

	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/gin-gonic/gin"
)

type auditHandler struct {
	auditService portssvc.AuditReaderSvc
}

// RegisterAuditRoutes registers the read and verification routes of the audit log.
func RegisterAuditRoutes(rg *gin.RouterGroup, auditService portssvc.AuditReaderSvc) {
	h := &auditHandler{auditService: auditService}

	audit := rg.Group("/audit")
	{
		audit.GET("/events", h.queryEvents)
		audit.GET("/events/:eventID/verify", h.verifyEvent)
		audit.POST("/verify", h.verifyRange)
	}
}

func (h *auditHandler) queryEvents(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var params dto.AuditQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err)
		return
	}
	events, next, err := h.auditService.Query(c.Request.Context(), actor, params)
	if err != nil {
		respondError(c, err, "Failed to query audit events")
		return
	}
	c.JSON(http.StatusOK, dto.ListAuditEventsResponse{Events: events, NextToken: next})
}

func (h *auditHandler) verifyEvent(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	eventID := c.Param("eventID")
	valid, err := h.auditService.Verify(c.Request.Context(), actor, eventID)
	if err != nil {
		respondError(c, err, "Failed to verify audit event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"eventID": eventID, "verified": valid})
}

func (h *auditHandler) verifyRange(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.VerifyAuditRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := h.auditService.VerifyRange(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Failed to verify audit range")
		return
	}
	c.JSON(http.StatusOK, result)
}
