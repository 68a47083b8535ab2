package repositories

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// UserReader defines read operations for user data.
type UserReader interface {
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, tenantID *string, email string) (*domain.User, error)
	ListUsersByTenant(ctx context.Context, tenantID string) ([]domain.User, error)
}

// UserWriter defines write operations for user data.
type UserWriter interface {
	// SaveUser returns apperrors.ErrDuplicate when the email exists in the tenant.
	SaveUser(ctx context.Context, user domain.User) error
	UpdateUser(ctx context.Context, user domain.User) error
}

// UserRepositoryFacade combines all user repository interfaces.
type UserRepositoryFacade interface {
	UserReader
	UserWriter
}
