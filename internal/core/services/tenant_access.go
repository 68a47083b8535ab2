package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
)

// accessResolver answers hierarchy questions from a fresh snapshot of the tenant arena.
type accessResolver struct {
	tenants portsrepo.TenantReader
}

func newAccessResolver(tenants portsrepo.TenantReader) *accessResolver {
	return &accessResolver{tenants: tenants}
}

func (r *accessResolver) graph(ctx context.Context) (*domain.TenantGraph, error) {
	all, err := r.tenants.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant graph: %w", err)
	}
	return domain.NewTenantGraph(all), nil
}

func graphError(err error, tenantID string) error {
	switch {
	case errors.Is(err, domain.ErrUnknownTenant):
		return apperrors.Newf(apperrors.TenantNotFound, "tenant %s not found", tenantID)
	case errors.Is(err, domain.ErrCorruptHierarchy):
		return apperrors.Wrap(apperrors.HierarchyCorrupt, err, fmt.Sprintf("walking ancestors of %s", tenantID))
	default:
		return err
	}
}

// ResolveAccess implements the hierarchy rules of the permission gate.
func (r *accessResolver) ResolveAccess(ctx context.Context, actor domain.Actor, targetTenantID string, action domain.TenantAction) (domain.AccessDecision, error) {
	if actor.IsSuper() {
		return domain.AccessDecision{Granted: true, Reason: "super role"}, nil
	}
	if actor.TenantID == "" {
		return domain.AccessDecision{Reason: "actor has no tenant"}, nil
	}

	g, err := r.graph(ctx)
	if err != nil {
		return domain.AccessDecision{}, err
	}
	own, ok := g.Get(actor.TenantID)
	if !ok || !own.IsActive {
		return domain.AccessDecision{Reason: "actor tenant unavailable"}, nil
	}
	if _, ok := g.Get(targetTenantID); !ok {
		return domain.AccessDecision{Reason: "target tenant unknown"}, graphError(domain.ErrUnknownTenant, targetTenantID)
	}
	if targetTenantID == actor.TenantID {
		return domain.AccessDecision{Granted: true, Reason: "same tenant"}, nil
	}

	below, err := g.IsAncestor(actor.TenantID, targetTenantID)
	if err != nil {
		return domain.AccessDecision{}, graphError(err, targetTenantID)
	}
	if below {
		return domain.AccessDecision{Granted: true, Reason: "descendant tenant"}, nil
	}

	above, err := g.IsAncestor(targetTenantID, actor.TenantID)
	if err != nil {
		return domain.AccessDecision{}, graphError(err, actor.TenantID)
	}
	if above {
		if action == domain.ActionRead {
			return domain.AccessDecision{Granted: true, Reason: "ancestor tenant, read only"}, nil
		}
		return domain.AccessDecision{Reason: "ancestor tenant is read only"}, nil
	}
	return domain.AccessDecision{Reason: "tenant outside hierarchy"}, nil
}

// AccessibleTenants lists the tenants reachable for action. Nil means unrestricted.
func (r *accessResolver) AccessibleTenants(ctx context.Context, actor domain.Actor, action domain.TenantAction) ([]string, error) {
	if actor.IsSuper() {
		return nil, nil
	}
	if actor.TenantID == "" {
		return []string{}, nil
	}
	g, err := r.graph(ctx)
	if err != nil {
		return nil, err
	}
	own, ok := g.Get(actor.TenantID)
	if !ok || !own.IsActive {
		return []string{}, nil
	}
	ids, err := g.Descendants(actor.TenantID)
	if err != nil {
		return nil, graphError(err, actor.TenantID)
	}
	if action == domain.ActionRead {
		ancestors, err := g.Ancestors(actor.TenantID)
		if err != nil {
			return nil, graphError(err, actor.TenantID)
		}
		for _, id := range ancestors {
			if _, known := g.Get(id); known {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
