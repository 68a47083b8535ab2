package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/google/uuid"
)

// tenantService maintains the tenant forest.
type tenantService struct {
	BaseService
	store portsrepo.UnitOfWorkStore
	authz portssvc.AuthorizationSvc
	audit portssvc.AuditWriterSvc
}

// NewTenantService creates a new tenant service.
func NewTenantService(store portsrepo.UnitOfWorkStore, authz portssvc.AuthorizationSvc, audit portssvc.AuditWriterSvc) portssvc.TenantSvcFacade {
	return &tenantService{store: store, authz: authz, audit: audit}
}

var _ portssvc.TenantSvcFacade = (*tenantService)(nil)

func (s *tenantService) ResolveAccess(ctx context.Context, actor domain.Actor, targetTenantID string, action domain.TenantAction) (domain.AccessDecision, error) {
	return s.authz.ResolveAccess(ctx, actor, targetTenantID, action)
}

func (s *tenantService) AccessibleTenants(ctx context.Context, actor domain.Actor, action domain.TenantAction) ([]string, error) {
	return s.authz.AccessibleTenants(ctx, actor, action)
}

func (s *tenantService) GetTenant(ctx context.Context, actor domain.Actor, tenantID string) (*domain.Tenant, error) {
	if err := s.authz.Authorize(ctx, actor, domain.OpReadTenant, tenantID); err != nil {
		return nil, err
	}
	tenant, err := s.store.Tenants().FindTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.TenantNotFound, "tenant %s not found", tenantID)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

func (s *tenantService) ListTenants(ctx context.Context, actor domain.Actor) ([]domain.Tenant, error) {
	if err := s.authz.Authorize(ctx, actor, domain.OpReadTenant); err != nil {
		return nil, err
	}
	all, err := s.store.Tenants().ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	visible, err := s.authz.AccessibleTenants(ctx, actor, domain.ActionRead)
	if err != nil {
		return nil, err
	}
	if visible == nil {
		return all, nil
	}
	allowed := make(map[string]struct{}, len(visible))
	for _, id := range visible {
		allowed[id] = struct{}{}
	}
	out := make([]domain.Tenant, 0, len(visible))
	for _, t := range all {
		if _, ok := allowed[t.TenantID]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *tenantService) CreateTenant(ctx context.Context, actor domain.Actor, req dto.CreateTenantRequest) (*domain.Tenant, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}

	parentID := derefOr(req.ParentID, "")
	if parentID == "" {
		if !actor.IsSuper() {
			return nil, s.authz.Deny(ctx, actor, domain.OpCreateTenant, "tenant", req.Code, "root tenants require super role")
		}
		if err := s.authz.Authorize(ctx, actor, domain.OpCreateTenant); err != nil {
			return nil, err
		}
		if req.Level != domain.MinTenantLevel {
			return nil, apperrors.Newf(apperrors.InvalidHierarchyLevel, "root tenant must be level %d", domain.MinTenantLevel)
		}
	} else if err := s.authz.Authorize(ctx, actor, domain.OpCreateTenant, parentID); err != nil {
		return nil, err
	}

	now := s.now()
	tenant := domain.Tenant{
		TenantID: uuid.NewString(),
		Code:     req.Code,
		Name:     req.Name,
		Level:    req.Level,
		IsActive: true,
		OwnerID:  req.OwnerID,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actor.UserID,
			LastUpdatedAt: now,
			LastUpdatedBy: actor.UserID,
		},
	}
	if parentID != "" {
		tenant.ParentID = strPtr(parentID)
	}

	err := withinTx(ctx, s.store, func(ctx context.Context, tx portsrepo.Store) error {
		if parentID != "" {
			parent, err := tx.Tenants().FindTenantByID(ctx, parentID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return apperrors.Newf(apperrors.TenantNotFound, "parent tenant %s not found", parentID)
				}
				return fmt.Errorf("failed to load parent tenant: %w", err)
			}
			if !parent.IsActive {
				return apperrors.Newf(apperrors.TenantNotFound, "parent tenant %s is inactive", parentID)
			}
			if tenant.Level <= parent.Level || tenant.Level > domain.MaxTenantLevel {
				return apperrors.Newf(apperrors.InvalidHierarchyLevel, "level %d must be above parent level %d and at most %d", tenant.Level, parent.Level, domain.MaxTenantLevel)
			}
		}
		if err := tx.Tenants().SaveTenant(ctx, tenant); err != nil {
			if errors.Is(err, apperrors.ErrDuplicate) {
				return apperrors.Newf(apperrors.Conflict, "tenant code %q is taken", tenant.Code)
			}
			return fmt.Errorf("failed to save tenant: %w", err)
		}
		_, err := s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventTenantCreated,
			Severity:     domain.SeverityMedium,
			Actor:        &actor,
			TenantID:     strPtr(tenant.TenantID),
			Action:       domain.OpCreateTenant.Name,
			ResourceKind: "tenant",
			ResourceID:   tenant.TenantID,
			Details:      map[string]any{"code": tenant.Code, "parentID": parentID, "level": tenant.Level},
		})
		return err
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to create tenant", slog.String("code", req.Code))
		return nil, err
	}
	s.LogInfo(ctx, "Tenant created", slog.String("tenant_id", tenant.TenantID), slog.String("code", tenant.Code))
	return &tenant, nil
}

func (s *tenantService) MoveTenant(ctx context.Context, actor domain.Actor, tenantID string, req dto.MoveTenantRequest) (*domain.Tenant, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor, domain.OpMoveTenant, tenantID, req.NewParentID); err != nil {
		return nil, err
	}

	var moved domain.Tenant
	err := withinTx(ctx, s.store, func(ctx context.Context, tx portsrepo.Store) error {
		all, err := tx.Tenants().ListTenants(ctx)
		if err != nil {
			return fmt.Errorf("failed to load tenant graph: %w", err)
		}
		g := domain.NewTenantGraph(all)
		tenant, ok := g.Get(tenantID)
		if !ok {
			return apperrors.Newf(apperrors.TenantNotFound, "tenant %s not found", tenantID)
		}
		parent, ok := g.Get(req.NewParentID)
		if !ok || !parent.IsActive {
			return apperrors.Newf(apperrors.TenantNotFound, "parent tenant %s not found", req.NewParentID)
		}
		if req.NewParentID == tenantID {
			return apperrors.Newf(apperrors.CircularReference, "tenant %s cannot be its own parent", tenantID)
		}
		below, err := g.IsAncestor(tenantID, req.NewParentID)
		if err != nil {
			return graphError(err, req.NewParentID)
		}
		if below {
			return apperrors.Newf(apperrors.CircularReference, "tenant %s is an ancestor of %s", tenantID, req.NewParentID)
		}
		if tenant.Level <= parent.Level {
			return apperrors.Newf(apperrors.InvalidHierarchyLevel, "level %d must be above parent level %d", tenant.Level, parent.Level)
		}

		previous := derefOr(tenant.ParentID, "")
		now := s.now()
		tenant.ParentID = strPtr(req.NewParentID)
		tenant.LastUpdatedAt = now
		tenant.LastUpdatedBy = actor.UserID
		if err := tx.Tenants().UpdateTenant(ctx, tenant); err != nil {
			return fmt.Errorf("failed to update tenant: %w", err)
		}
		moved = tenant
		_, err = s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventTenantMoved,
			Severity:     domain.SeverityHigh,
			Actor:        &actor,
			TenantID:     strPtr(tenantID),
			Action:       domain.OpMoveTenant.Name,
			ResourceKind: "tenant",
			ResourceID:   tenantID,
			Details:      map[string]any{"from": previous, "to": req.NewParentID},
		})
		return err
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to move tenant", slog.String("tenant_id", tenantID))
		return nil, err
	}
	return &moved, nil
}

func (s *tenantService) DeactivateTenant(ctx context.Context, actor domain.Actor, tenantID string) error {
	if err := s.authz.Authorize(ctx, actor, domain.OpDeactivateTenant, tenantID); err != nil {
		return err
	}
	if actor.TenantID == tenantID {
		return s.authz.Deny(ctx, actor, domain.OpDeactivateTenant, "tenant", tenantID, "cannot deactivate own tenant")
	}
	err := withinTx(ctx, s.store, func(ctx context.Context, tx portsrepo.Store) error {
		tenant, err := tx.Tenants().FindTenantByID(ctx, tenantID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return apperrors.Newf(apperrors.TenantNotFound, "tenant %s not found", tenantID)
			}
			return fmt.Errorf("failed to load tenant: %w", err)
		}
		if !tenant.IsActive {
			return nil
		}
		now := s.now()
		tenant.IsActive = false
		tenant.LastUpdatedAt = now
		tenant.LastUpdatedBy = actor.UserID
		if err := tx.Tenants().UpdateTenant(ctx, *tenant); err != nil {
			return fmt.Errorf("failed to update tenant: %w", err)
		}
		_, err = s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventTenantDeactivated,
			Severity:     domain.SeverityHigh,
			Actor:        &actor,
			TenantID:     strPtr(tenantID),
			Action:       domain.OpDeactivateTenant.Name,
			ResourceKind: "tenant",
			ResourceID:   tenantID,
		})
		return err
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to deactivate tenant", slog.String("tenant_id", tenantID))
	}
	return err
}
