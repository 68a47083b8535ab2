package services

import (
	"context"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/SscSPs/fx_ledger/internal/dto"
)

// AuditRecord is what callers hand to the log. The log assigns id, timestamp,
// encryption and checksum.
type AuditRecord struct {
	Kind         domain.EventKind
	Severity     domain.Severity
	Actor        *domain.Actor // Nil for system events
	TenantID     *string
	Action       string
	ResourceKind string
	ResourceID   string
	Details      map[string]any

	// RequestIP and UserAgent override the actor's request metadata when set.
	RequestIP string
	UserAgent string
}

// AlertSink is the out-of-band delivery hook for high and critical events.
type AlertSink interface {
	Deliver(ctx context.Context, event domain.AuditEvent) error
}

// AuditWriterSvc appends events.
type AuditWriterSvc interface {
	// Append writes one event in its own scope.
	Append(ctx context.Context, rec AuditRecord) (*domain.AuditEvent, error)
	// AppendInTx writes one event inside an open unit of work. Its alert is
	// delivered once the unit commits and dropped if it rolls back.
	AppendInTx(ctx context.Context, tx repositories.Store, rec AuditRecord) (*domain.AuditEvent, error)
	// RecordLogin appends LOGIN_SUCCEEDED or LOGIN_FAILED.
	RecordLogin(ctx context.Context, userID *string, ip, userAgent string, success bool, reason string) error
}

// AuditReaderSvc defines read and verification operations.
type AuditReaderSvc interface {
	Query(ctx context.Context, actor domain.Actor, params dto.AuditQueryParams) ([]dto.AuditEventResponse, *string, error)
	Verify(ctx context.Context, actor domain.Actor, eventID string) (bool, error)
	VerifyRange(ctx context.Context, actor domain.Actor, req dto.VerifyAuditRangeRequest) (*domain.AuditVerification, error)
}

// AuditRetentionSvc discards old low-severity events.
type AuditRetentionSvc interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration, keepSeverityAtLeast domain.Severity) (int64, error)
}

// AuditSvcFacade combines all audit service interfaces.
type AuditSvcFacade interface {
	AuditWriterSvc
	AuditReaderSvc
	AuditRetentionSvc
}

// DetectionSvc runs the periodic detection rules.
type DetectionSvc interface {
	// RunDetection evaluates every rule over the window ending at now and returns the events emitted.
	RunDetection(ctx context.Context, now time.Time) ([]domain.AuditEvent, error)
}
