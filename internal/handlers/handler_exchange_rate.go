package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/gin-gonic/gin"
)

// exchangeRateHandler handles HTTP requests related to exchange rates.
type exchangeRateHandler struct {
	exchangeRateService portssvc.ExchangeRateSvcFacade
	authz               portssvc.AuthorizationSvc
}

// RegisterExchangeRateRoutes registers routes related to exchange rates.
func RegisterExchangeRateRoutes(rg *gin.RouterGroup, exchangeRateService portssvc.ExchangeRateSvcFacade, authz portssvc.AuthorizationSvc) {
	h := &exchangeRateHandler{exchangeRateService: exchangeRateService, authz: authz}

	exchangeRates := rg.Group("/exchange-rates")
	{
		exchangeRates.POST("", h.publishRate)
		exchangeRates.GET("", h.getRate)
		exchangeRates.GET("/history", h.rateHistory)
	}
}

// publishRate appends a rate and invalidates cached lookups for the pair.
func (h *exchangeRateHandler) publishRate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req dto.PublishRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	rate, err := h.exchangeRateService.PublishRate(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err, "Failed to publish exchange rate")
		return
	}
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Exchange rate published",
		slog.String("exchange_rate_id", rate.ExchangeRateID),
		slog.String("pair", string(rate.FromCurrency)+"/"+string(rate.ToCurrency)))
	c.JSON(http.StatusCreated, dto.ToExchangeRateResponse(rate))
}

// getRate resolves ?from=&to=&tenantID=&at= the way the coordinator would.
func (h *exchangeRateHandler) getRate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var q dto.RateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	var scope []string
	if q.TenantID != "" {
		scope = append(scope, q.TenantID)
	}
	if err := h.authz.Authorize(c.Request.Context(), actor, domain.OpReadRate, scope...); err != nil {
		respondError(c, err, "Rate lookup denied")
		return
	}

	at := time.Now().UTC()
	if q.At != nil {
		at = q.At.UTC()
	}
	rate, err := h.exchangeRateService.GetRate(c.Request.Context(), q.From, q.To, q.TenantID, at)
	if err != nil {
		respondError(c, err, "Failed to resolve exchange rate")
		return
	}
	c.JSON(http.StatusOK, dto.RateResponse{FromCurrency: q.From, ToCurrency: q.To, TenantID: q.TenantID, Rate: rate, At: at})
}

func (h *exchangeRateHandler) rateHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var params dto.RateHistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondBindError(c, err)
		return
	}
	rates, err := h.exchangeRateService.RateHistory(c.Request.Context(), actor, params.From, params.To, params.TenantID, params.Limit)
	if err != nil {
		respondError(c, err, "Failed to list exchange rate history")
		return
	}
	resp := make([]dto.ExchangeRateResponse, len(rates))
	for i := range rates {
		resp[i] = dto.ToExchangeRateResponse(&rates[i])
	}
	c.JSON(http.StatusOK, resp)
}
