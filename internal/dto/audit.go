package dto

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// AuditQueryParams defines query parameters for reading the audit log.
type AuditQueryParams struct {
	TenantID    *string            `form:"tenantID"`
	ActorID     *string            `form:"actorID"`
	Kinds       []domain.EventKind `form:"kind"`
	MinSeverity string             `form:"minSeverity" binding:"omitempty,oneof=low medium high critical"`
	From        *time.Time         `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To          *time.Time         `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit       int                `form:"limit,default=50" binding:"min=0,max=500"`
	NextToken   *string            `form:"nextToken"`
}

// VerifyAuditRangeRequest selects the events to re-verify.
type VerifyAuditRangeRequest struct {
	TenantID string    `json:"tenantID" form:"tenantID" binding:"required"`
	From     time.Time `json:"from" form:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	To       time.Time `json:"to" form:"to" binding:"required,gtfield=From" time_format:"2006-01-02T15:04:05Z07:00"`
}

// AuditEventResponse is an audit event with request metadata decrypted for authorized readers.
type AuditEventResponse struct {
	domain.AuditEvent
	Verified bool `json:"verified"`
}

// ListAuditEventsResponse is one page of audit events.
type ListAuditEventsResponse struct {
	Events    []AuditEventResponse `json:"events"`
	NextToken *string              `json:"nextToken,omitempty"`
}
