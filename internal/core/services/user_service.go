package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/google/uuid"
)

type userService struct {
	BaseService
	store portsrepo.UnitOfWorkStore
	authz portssvc.AuthorizationSvc
	audit portssvc.AuditWriterSvc
}

// NewUserService creates a new user service.
func NewUserService(store portsrepo.UnitOfWorkStore, authz portssvc.AuthorizationSvc, audit portssvc.AuditWriterSvc) portssvc.UserSvcFacade {
	return &userService{store: store, authz: authz, audit: audit}
}

var _ portssvc.UserSvcFacade = (*userService)(nil)

func (s *userService) CreateUser(ctx context.Context, actor domain.Actor, req dto.CreateUserRequest) (*domain.User, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	tenantID := derefOr(req.TenantID, "")
	if (req.Role == domain.RoleSuper) != (tenantID == "") {
		return nil, apperrors.New(apperrors.InvalidRequest, "super users have no tenant and every other role needs one")
	}
	for _, p := range req.Permissions {
		if !p.IsValid() {
			return nil, apperrors.Newf(apperrors.InvalidRequest, "unknown permission %q", p)
		}
	}

	var tenants []string
	if tenantID != "" {
		tenants = append(tenants, tenantID)
	}
	if err := s.authz.Authorize(ctx, actor, domain.OpCreateUser, tenants...); err != nil {
		return nil, err
	}
	if req.Role > actor.Role {
		return nil, s.authz.Deny(ctx, actor, domain.OpCreateUser, "user", req.Email, "cannot grant role "+req.Role.String())
	}
	if missing := actor.Permissions.Missing(req.Permissions); len(missing) > 0 && !actor.IsSuper() {
		return nil, s.authz.Deny(ctx, actor, domain.OpCreateUser, "user", req.Email, "cannot grant permission "+string(missing[0]))
	}

	now := s.now()
	user := domain.User{
		UserID:      uuid.NewString(),
		TenantID:    req.TenantID,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Name:        req.Name,
		Role:        req.Role,
		Permissions: req.Permissions,
		BranchID:    req.BranchID,
		IsActive:    true,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actor.UserID,
			LastUpdatedAt: now,
			LastUpdatedBy: actor.UserID,
		},
	}

	err := withinTx(ctx, s.store, func(ctx context.Context, tx portsrepo.Store) error {
		if tenantID != "" {
			tenant, err := tx.Tenants().FindTenantByID(ctx, tenantID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return apperrors.Newf(apperrors.TenantNotFound, "tenant %s not found", tenantID)
				}
				return fmt.Errorf("failed to load tenant: %w", err)
			}
			if !tenant.IsActive {
				return apperrors.Newf(apperrors.TenantNotFound, "tenant %s is inactive", tenantID)
			}
		}
		if err := tx.Users().SaveUser(ctx, user); err != nil {
			if errors.Is(err, apperrors.ErrDuplicate) {
				return apperrors.Newf(apperrors.Conflict, "email %s already registered", user.Email)
			}
			return fmt.Errorf("failed to save user: %w", err)
		}
		_, err := s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventUserCreated,
			Severity:     domain.SeverityMedium,
			Actor:        &actor,
			TenantID:     req.TenantID,
			Action:       domain.OpCreateUser.Name,
			ResourceKind: "user",
			ResourceID:   user.UserID,
			Details:      map[string]any{"role": user.Role.String()},
		})
		return err
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to create user", slog.String("tenant_id", tenantID))
		return nil, err
	}
	s.LogInfo(ctx, "User created", slog.String("user_id", user.UserID), slog.String("role", user.Role.String()))
	return &user, nil
}

func (s *userService) GetUser(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error) {
	user, err := s.store.Users().FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if actor.IsSuper() {
				return nil, apperrors.Newf(apperrors.NotFound, "user %s not found", userID)
			}
			return nil, s.authz.Deny(ctx, actor, domain.OpReadUser, "user", userID, "unknown user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	// Everybody may read themselves.
	if user.UserID == actor.UserID {
		return user, nil
	}
	var tenants []string
	if user.TenantID != nil {
		tenants = append(tenants, *user.TenantID)
	} else if !actor.IsSuper() {
		return nil, s.authz.Deny(ctx, actor, domain.OpReadUser, "user", userID, "platform user")
	}
	if err := s.authz.Authorize(ctx, actor, domain.OpReadUser, tenants...); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, actor domain.Actor, tenantID string) ([]domain.User, error) {
	if err := s.authz.Authorize(ctx, actor, domain.OpReadUser, tenantID); err != nil {
		return nil, err
	}
	users, err := s.store.Users().ListUsersByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *userService) DeactivateUser(ctx context.Context, actor domain.Actor, userID string) error {
	if userID == actor.UserID {
		return apperrors.New(apperrors.InvalidRequest, "users cannot deactivate themselves")
	}
	user, err := s.store.Users().FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) && actor.IsSuper() {
			return apperrors.Newf(apperrors.NotFound, "user %s not found", userID)
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.authz.Deny(ctx, actor, domain.OpDeactivateUser, "user", userID, "unknown user")
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	var tenants []string
	if user.TenantID != nil {
		tenants = append(tenants, *user.TenantID)
	}
	if err := s.authz.Authorize(ctx, actor, domain.OpDeactivateUser, tenants...); err != nil {
		return err
	}
	if user.Role > actor.Role || (user.TenantID == nil && !actor.IsSuper()) {
		return s.authz.Deny(ctx, actor, domain.OpDeactivateUser, "user", userID, "target outranks actor")
	}
	if !user.IsActive {
		return nil
	}

	return withinTx(ctx, s.store, func(ctx context.Context, tx portsrepo.Store) error {
		now := s.now()
		user.IsActive = false
		user.DeactivatedAt = &now
		user.LastUpdatedAt = now
		user.LastUpdatedBy = actor.UserID
		if err := tx.Users().UpdateUser(ctx, *user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		_, err := s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventUserDeactivated,
			Severity:     domain.SeverityHigh,
			Actor:        &actor,
			TenantID:     user.TenantID,
			Action:       domain.OpDeactivateUser.Name,
			ResourceKind: "user",
			ResourceID:   userID,
		})
		return err
	})
}

// ResolveActor loads the user behind an authenticated request. Inactive users
// and users of inactive tenants are refused.
func (s *userService) ResolveActor(ctx context.Context, userID, ip, userAgent string) (domain.Actor, error) {
	user, err := s.store.Users().FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Actor{}, apperrors.New(apperrors.PermissionDenied, "unknown user")
		}
		return domain.Actor{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return domain.Actor{}, apperrors.New(apperrors.PermissionDenied, "user is inactive")
	}
	if user.TenantID != nil {
		tenant, err := s.store.Tenants().FindTenantByID(ctx, *user.TenantID)
		if err != nil || !tenant.IsActive {
			return domain.Actor{}, apperrors.New(apperrors.PermissionDenied, "tenant is inactive")
		}
	}
	return domain.ActorFromUser(*user, ip, userAgent), nil
}
