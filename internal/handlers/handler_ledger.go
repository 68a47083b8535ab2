package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/gin-gonic/gin"
)

// ledgerHandler exposes the transaction coordinator.
type ledgerHandler struct {
	ledgerService  portssvc.LedgerSvcFacade
	journalService portssvc.JournalReaderSvc
}

// RegisterLedgerRoutes registers money-moving and transaction read routes.
func RegisterLedgerRoutes(rg *gin.RouterGroup, ledgerService portssvc.LedgerSvcFacade, journalService portssvc.JournalReaderSvc) {
	h := &ledgerHandler{ledgerService: ledgerService, journalService: journalService}

	txns := rg.Group("/transactions")
	{
		txns.POST("/transfer", postImmediate(h.ledgerService.Transfer))
		txns.POST("/exchange", postImmediate(h.ledgerService.Exchange))
		txns.POST("/fee", postImmediate(h.ledgerService.PostFee))
		txns.POST("/adjustment", postImmediate(h.ledgerService.PostAdjustment))
		txns.POST("/refund", postImmediate(h.ledgerService.PostRefund))
		txns.POST("/trades", postImmediate(h.ledgerService.CreateStagedTransaction))
		txns.POST("/batch", h.executeBatch)

		txns.GET("", h.listTransactions)
		txns.GET("/:transactionID", h.getTransaction)
		txns.GET("/:transactionID/legs", h.listPaymentLegs)
		txns.GET("/:transactionID/journal", h.getJournalEntries)

		txns.POST("/:transactionID/payments", transition(h.ledgerService.AddPayment))
		txns.POST("/:transactionID/payments/verify", transition(h.ledgerService.VerifyPayment))
		txns.POST("/:transactionID/cancel", transition(h.ledgerService.CancelTransaction))
		txns.POST("/:transactionID/fail", transition(h.ledgerService.FailTransaction))
		txns.POST("/:transactionID/rollback", transition(h.ledgerService.Rollback))
	}
}

// postImmediate binds R and runs one coordinator operation that creates a transaction.
func postImmediate[R any](op func(context.Context, domain.Actor, R) (*domain.Transaction, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		var req R
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		txn, err := op(c.Request.Context(), actor, req)
		if err != nil {
			respondError(c, err, "Ledger operation failed")
			return
		}
		middleware.GetLoggerFromCtx(c.Request.Context()).Info("Ledger operation accepted",
			slog.String("transaction_id", txn.TransactionID),
			slog.String("type", string(txn.Type)),
			slog.String("status", string(txn.Status)))
		c.JSON(http.StatusCreated, dto.ToTransactionResponse(txn))
	}
}

// transition binds R and applies it to the transaction named in the path.
func transition[R any](op func(context.Context, domain.Actor, string, R) (*domain.Transaction, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		var req R
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		txn, err := op(c.Request.Context(), actor, c.Param("transactionID"), req)
		if err != nil {
			respondError(c, err, "Transaction update failed")
			return
		}
		c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
	}
}

func (h *ledgerHandler) executeBatch(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	txns, err := h.ledgerService.ExecuteBatch(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Batch failed")
		return
	}
	resp := dto.BatchResponse{Transactions: make([]dto.TransactionResponse, len(txns))}
	for i := range txns {
		resp.Transactions[i] = dto.ToTransactionResponse(&txns[i])
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *ledgerHandler) getTransaction(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	txn, err := h.ledgerService.GetTransaction(c.Request.Context(), actor, c.Param("transactionID"))
	if err != nil {
		respondError(c, err, "Failed to get transaction")
		return
	}
	c.JSON(http.StatusOK, dto.ToTransactionResponse(txn))
}

func (h *ledgerHandler) listTransactions(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var params dto.ListTransactionsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err)
		return
	}
	if params.TenantID == "" {
		params.TenantID = actor.TenantID
	}
	txns, next, err := h.ledgerService.ListTransactions(c.Request.Context(), actor, params)
	if err != nil {
		respondError(c, err, "Failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, dto.ToListTransactionResponse(txns, next))
}

func (h *ledgerHandler) listPaymentLegs(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	legs, err := h.ledgerService.ListPaymentLegs(c.Request.Context(), actor, c.Param("transactionID"))
	if err != nil {
		respondError(c, err, "Failed to list payment legs")
		return
	}
	resp := make([]dto.PaymentLegResponse, len(legs))
	for i := range legs {
		resp[i] = dto.ToPaymentLegResponse(&legs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ledgerHandler) getJournalEntries(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	entries, err := h.journalService.GetEntries(c.Request.Context(), actor, c.Param("transactionID"))
	if err != nil {
		respondError(c, err, "Failed to get journal entries")
		return
	}
	c.JSON(http.StatusOK, entries)
}
