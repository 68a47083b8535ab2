package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// contextKey is a private type for values stored in request contexts.
type contextKey string

const (
	loggerCtxKey    = contextKey("logger")
	requestIDCtxKey = contextKey("requestID")
)

// StructuredLoggingMiddleware injects a request-scoped logger into the request context.
func StructuredLoggingMiddleware(baseLogger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		requestLogger := baseLogger.With(
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)
		c.Header("X-Request-ID", requestID)

		ctx := WithLogger(c.Request.Context(), requestLogger)
		ctx = context.WithValue(ctx, requestIDCtxKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		GetLoggerFromCtx(c.Request.Context()).Info("Request completed",
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// GetLoggerFromCtx retrieves the request-scoped logger, falling back to slog.Default.
func GetLoggerFromCtx(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerCtxKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// GetRequestIDFromCtx returns the id assigned by StructuredLoggingMiddleware.
func GetRequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}
