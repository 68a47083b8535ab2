package services

import (
	"context"
	"log/slog"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"go.uber.org/multierr"
)

// authorizationService is the permission gate: role, permission tokens, tenant reach.
type authorizationService struct {
	BaseService
	*accessResolver
	audit portssvc.AuditWriterSvc
}

// NewAuthorizationService creates the permission gate. Denials are written to audit.
func NewAuthorizationService(tenants portsrepo.TenantReader, audit portssvc.AuditWriterSvc) portssvc.AuthorizationSvc {
	return &authorizationService{
		accessResolver: newAccessResolver(tenants),
		audit:          audit,
	}
}

var _ portssvc.AuthorizationSvc = (*authorizationService)(nil)

func (s *authorizationService) Authorize(ctx context.Context, actor domain.Actor, op domain.Operation, tenantIDs ...string) error {
	if !actor.Role.AtLeast(op.MinRole) {
		return s.Deny(ctx, actor, op, "operation", op.Name, "role "+actor.Role.String()+" below "+op.MinRole.String())
	}
	if missing := actor.Permissions.Missing(op.Permissions); len(missing) > 0 {
		return s.Deny(ctx, actor, op, "operation", op.Name, "missing permission "+string(missing[0]))
	}

	seen := make(map[string]struct{}, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		if _, dup := seen[tenantID]; dup {
			continue
		}
		seen[tenantID] = struct{}{}

		decision, err := s.ResolveAccess(ctx, actor, tenantID, op.Action)
		if err != nil {
			if apperrors.Is(err, apperrors.TenantNotFound) && !actor.IsSuper() {
				return s.Deny(ctx, actor, op, "tenant", tenantID, "unknown tenant")
			}
			s.LogError(ctx, err, "Failed to resolve tenant access",
				slog.String("tenant_id", tenantID),
				slog.String("operation", op.Name))
			return err
		}
		if !decision.Granted {
			return s.Deny(ctx, actor, op, "tenant", tenantID, decision.Reason)
		}
	}
	return nil
}

func (s *authorizationService) Deny(ctx context.Context, actor domain.Actor, op domain.Operation, resourceKind, resourceID, reason string) error {
	denied := apperrors.Newf(apperrors.PermissionDenied, "%s denied for %s: %s", op.Name, actor.UserID, reason)
	s.LogWarn(ctx, denied, "Authorization denied",
		slog.String("user_id", actor.UserID),
		slog.String("operation", op.Name),
		slog.String("resource_kind", resourceKind))

	var tenantID *string
	if actor.TenantID != "" {
		tenantID = strPtr(actor.TenantID)
	}
	_, err := s.audit.Append(ctx, portssvc.AuditRecord{
		Kind:         domain.EventAuthorizationFailure,
		Severity:     domain.SeverityHigh,
		Actor:        &actor,
		TenantID:     tenantID,
		Action:       op.Name,
		ResourceKind: resourceKind,
		ResourceID:   resourceID,
		Details:      map[string]any{"reason": reason, "role": actor.Role.String()},
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to audit authorization failure", slog.String("operation", op.Name))
		return multierr.Append(denied, err)
	}
	return denied
}
