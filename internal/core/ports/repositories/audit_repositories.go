package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// AuditReader defines read operations for audit events.
type AuditReader interface {
	FindEventByID(ctx context.Context, eventID string) (*domain.AuditEvent, error)
	// QueryEvents returns events matching filter ordered by timestamp then id.
	QueryEvents(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, *string, error)
}

// AuditWriter appends events. PurgeEvents is the only deletion path and only
// removes events strictly below keepSeverityAtLeast.
type AuditWriter interface {
	AppendEvent(ctx context.Context, event domain.AuditEvent) error
	PurgeEvents(ctx context.Context, olderThan time.Time, keepSeverityAtLeast domain.Severity) (int64, error)
}

// AuditRepositoryFacade combines all audit repository interfaces.
type AuditRepositoryFacade interface {
	AuditReader
	AuditWriter
}
