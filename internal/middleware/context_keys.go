package middleware

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/gin-gonic/gin"
)

const actorCtxKey = contextKey("actor")

// WithActor returns a copy of ctx carrying the authenticated actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromCtx retrieves the actor stored by AuthMiddleware.
func ActorFromCtx(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey).(domain.Actor)
	return actor, ok
}

// GetUserIDFromContext retrieves the authenticated user ID from the request context.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	actor, ok := ActorFromCtx(c.Request.Context())
	if !ok {
		return "", false
	}
	return actor.UserID, true
}
