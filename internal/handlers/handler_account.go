package handlers

import (
	"log/slog"
	"net/http"

	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/gin-gonic/gin"
)

// accountHandler handles HTTP requests related to accounts.
type accountHandler struct {
	accountService portssvc.AccountSvcFacade
}

// newAccountHandler creates a new accountHandler.
func newAccountHandler(as portssvc.AccountSvcFacade) *accountHandler {
	return &accountHandler{
		accountService: as,
	}
}

// RegisterAccountRoutes registers routes related to accounts.
func RegisterAccountRoutes(rg *gin.RouterGroup, accountService portssvc.AccountSvcFacade) {
	h := newAccountHandler(accountService)

	accounts := rg.Group("/accounts")
	{
		accounts.POST("", h.createAccount)
		accounts.GET("", h.listAccounts)
		accounts.GET("/by-number/:accountNumber", h.getAccountByNumber)
		accounts.GET("/:accountID", h.getAccount)
		accounts.PUT("/:accountID/limits", h.updateLimits)
		accounts.PUT("/:accountID/status", h.changeStatus)
		accounts.POST("/:accountID/freeze", h.freezeFunds)
		accounts.POST("/:accountID/unfreeze", h.unfreezeFunds)
	}
}

// createAccount handles POST /accounts.
func (h *accountHandler) createAccount(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	logger.Info("Received request to create account", slog.String("tenant_id", req.TenantID), slog.String("currency_code", string(req.CurrencyCode)))

	account, err := h.accountService.CreateAccount(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Failed to create account")
		return
	}
	c.JSON(http.StatusCreated, dto.ToAccountResponse(account))
}

// getAccount handles GET /accounts/:accountID.
func (h *accountHandler) getAccount(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	account, err := h.accountService.GetAccount(c.Request.Context(), actor, c.Param("accountID"))
	if err != nil {
		respondError(c, err, "Failed to get account")
		return
	}
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

func (h *accountHandler) getAccountByNumber(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	account, err := h.accountService.GetAccountByNumber(c.Request.Context(), actor, c.Param("accountNumber"))
	if err != nil {
		respondError(c, err, "Failed to get account by number")
		return
	}
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

// listAccounts handles GET /accounts. The tenant defaults to the actor's own.
func (h *accountHandler) listAccounts(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var params dto.ListAccountsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err)
		return
	}
	if params.TenantID == "" {
		params.TenantID = actor.TenantID
	}

	accounts, next, err := h.accountService.ListAccounts(c.Request.Context(), actor, params)
	if err != nil {
		respondError(c, err, "Failed to list accounts")
		return
	}
	c.JSON(http.StatusOK, dto.ToListAccountResponse(accounts, next))
}

func (h *accountHandler) updateLimits(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.UpdateAccountLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	account, err := h.accountService.UpdateLimits(c.Request.Context(), actor, c.Param("accountID"), req)
	if err != nil {
		respondError(c, err, "Failed to update account limits")
		return
	}
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

func (h *accountHandler) changeStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.ChangeAccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	account, err := h.accountService.ChangeStatus(c.Request.Context(), actor, c.Param("accountID"), req)
	if err != nil {
		respondError(c, err, "Failed to change account status")
		return
	}
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

func (h *accountHandler) freezeFunds(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.FreezeFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	account, err := h.accountService.FreezeFunds(c.Request.Context(), actor, c.Param("accountID"), req)
	if err != nil {
		respondError(c, err, "Failed to freeze funds")
		return
	}
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}

func (h *accountHandler) unfreezeFunds(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.FreezeFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	account, err := h.accountService.UnfreezeFunds(c.Request.Context(), actor, c.Param("accountID"), req)
	if err != nil {
		respondError(c, err, "Failed to unfreeze funds")
		return
	}
	c.JSON(http.StatusOK, dto.ToAccountResponse(account))
}
