package handlers

import (
	"log/slog"
	"net/http"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/gin-gonic/gin"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// respondError maps err onto the taxonomy and writes it. Internal causes are logged, never returned.
func respondError(c *gin.Context, err error, msg string) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	kind := apperrors.KindOf(err)
	meta := apperrors.MetadataFor(kind)

	body := errorResponse{Code: meta.Code, Error: meta.PublicMessage}
	if meta.DetailsAllowed {
		if appErr := apperrors.As(err); appErr != nil {
			body.Details = appErr.Details
		}
	}

	if meta.HTTPStatus >= http.StatusInternalServerError {
		logger.Error(msg, slog.String("code", meta.Code), slog.String("error", err.Error()))
	} else {
		logger.Warn(msg, slog.String("code", meta.Code), slog.String("error", err.Error()))
	}
	c.JSON(meta.HTTPStatus, body)
}

// respondBindError reports a request that failed binding or validation.
func respondBindError(c *gin.Context, err error) {
	middleware.GetLoggerFromCtx(c.Request.Context()).Warn("Invalid request", slog.String("error", err.Error()))
	meta := apperrors.MetadataFor(apperrors.InvalidRequest)
	c.JSON(meta.HTTPStatus, errorResponse{Code: meta.Code, Error: "Invalid request format: " + err.Error()})
}

// actorFrom returns the actor set by the auth middleware, aborting with 401 when absent.
func actorFrom(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFromCtx(c.Request.Context())
	if !ok {
		middleware.GetLoggerFromCtx(c.Request.Context()).Error("Actor not found in context")
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "AUTH_UNAUTHENTICATED", Error: "Unauthorized"})
		return domain.Actor{}, false
	}
	return actor, true
}
