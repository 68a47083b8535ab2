package services

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/dto"
)

// UserReaderSvc defines read operations for users.
type UserReaderSvc interface {
	GetUser(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error)
	ListUsers(ctx context.Context, actor domain.Actor, tenantID string) ([]domain.User, error)
}

// UserWriterSvc defines administrative user operations.
type UserWriterSvc interface {
	CreateUser(ctx context.Context, actor domain.Actor, req dto.CreateUserRequest) (*domain.User, error)
	DeactivateUser(ctx context.Context, actor domain.Actor, userID string) error
}

// ActorResolverSvc turns an authenticated user id into an actor.
type ActorResolverSvc interface {
	ResolveActor(ctx context.Context, userID, ip, userAgent string) (domain.Actor, error)
}

// UserSvcFacade combines all user-related service interfaces.
type UserSvcFacade interface {
	UserReaderSvc
	UserWriterSvc
	ActorResolverSvc
}
