package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/gin-gonic/gin"
)

type journalHandler struct {
	journalService portssvc.JournalSvcFacade
}

// RegisterJournalRoutes registers trial balance and repair routes.
func RegisterJournalRoutes(rg *gin.RouterGroup, journalService portssvc.JournalSvcFacade) {
	h := &journalHandler{journalService: journalService}

	journal := rg.Group("/journal")
	{
		journal.GET("/trial-balance/:tenantID", h.trialBalance)
		journal.POST("/rebuild", h.rebuild)
	}
}

// trialBalance reports per-currency balances; an unbalanced ledger still answers 200 with balanced=false.
func (h *journalHandler) trialBalance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	tb, err := h.journalService.TrialBalance(c.Request.Context(), actor, c.Param("tenantID"))
	if err != nil {
		respondError(c, err, "Failed to compute trial balance")
		return
	}
	if !tb.Balanced {
		middleware.GetLoggerFromCtx(c.Request.Context()).Error("Trial balance does not hold", slog.String("tenant_id", tb.TenantID))
	}
	c.JSON(http.StatusOK, tb)
}

func (h *journalHandler) rebuild(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.RebuildJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := h.journalService.RebuildJournal(c.Request.Context(), actor, req.TenantID, req.TransactionID)
	if err != nil {
		respondError(c, err, "Failed to rebuild journal")
		return
	}
	c.JSON(http.StatusOK, result)
}
