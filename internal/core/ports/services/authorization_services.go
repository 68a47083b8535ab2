package services

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// AuthorizationSvc is the permission gate in front of every core entry point.
type AuthorizationSvc interface {
	TenantAccessSvc

	// Authorize checks role, permission tokens and tenant reachability for op.
	// Denials are audited and returned as PermissionDenied.
	Authorize(ctx context.Context, actor domain.Actor, op domain.Operation, tenantIDs ...string) error

	// Deny audits a denial decided elsewhere (for example an account outside the
	// actor's reach) and returns the non-leaking PermissionDenied error.
	Deny(ctx context.Context, actor domain.Actor, op domain.Operation, resourceKind, resourceID, reason string) error
}
