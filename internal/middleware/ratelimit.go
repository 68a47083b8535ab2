package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
)

// RateLimit throttles requests per client IP, or per actor once authenticated.
func RateLimit(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor, ok := ActorFromCtx(c.Request.Context()); ok {
			key = "actor:" + actor.UserID
		}

		lctx, err := limiterInstance.Get(c.Request.Context(), key)
		if err != nil {
			GetLoggerFromCtx(c.Request.Context()).Error("Failed to get rate limit context", slog.String("key", key), slog.String("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": "Internal server error"})
			return
		}

		if lctx.Reached {
			GetLoggerFromCtx(c.Request.Context()).Warn("Rate limit exceeded", slog.String("key", key), slog.Int64("limit", lctx.Limit))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "error": "Too many requests. Please try again later."})
			return
		}
		c.Next()
	}
}
