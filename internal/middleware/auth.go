package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ActorResolver turns a verified token subject into an actor.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID, ip, userAgent string) (domain.Actor, error)
}

// AuthFailureRecorder records rejected credentials so detection rules can see them.
type AuthFailureRecorder interface {
	RecordLogin(ctx context.Context, userID *string, ip, userAgent string, success bool, reason string) error
}

// AuthMiddleware validates bearer JWTs, resolves the actor and stores it in the request context.
func AuthMiddleware(jwtSecret, issuer string, resolver ActorResolver, recorder AuthFailureRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		logger := GetLoggerFromCtx(ctx)

		reject := func(userID *string, reason, msg string) {
			if recorder != nil {
				if err := recorder.RecordLogin(ctx, userID, c.ClientIP(), c.Request.UserAgent(), false, reason); err != nil {
					logger.Error("Failed to record authentication failure", slog.String("error", err.Error()))
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "AUTH_UNAUTHENTICATED", "error": msg})
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn("Authorization header missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "AUTH_UNAUTHENTICATED", "error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			logger.Warn("Authorization header format invalid")
			reject(nil, "malformed_header", "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := utils.ParseAndValidateJWT(parts[1], jwtSecret, issuer)
		if err != nil {
			logger.Warn("Invalid token", slog.String("error", err.Error()))
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token has expired"
			} else if errors.Is(err, jwt.ErrTokenNotValidYet) {
				msg = "Token not valid yet"
			}
			reject(nil, "invalid_token", msg)
			return
		}
		if claims.Subject == "" {
			logger.Error("User ID (subject) missing from valid token")
			reject(nil, "missing_subject", "Invalid token claims")
			return
		}

		actor, err := resolver.ResolveActor(ctx, claims.Subject, c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			logger.Warn("Token subject could not be resolved", slog.String("user_id", claims.Subject), slog.String("error", err.Error()))
			subject := claims.Subject
			reject(&subject, "inactive_or_unknown_user", "Invalid token")
			return
		}

		enriched := logger.With(slog.String("user_id", actor.UserID), slog.String("tenant_id", actor.TenantID))
		ctx = WithLogger(WithActor(ctx, actor), enriched)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
