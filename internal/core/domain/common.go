package domain

import "time"

// AuditFields holds standard audit information for domain entities.
type AuditFields struct {
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"` // UserID Reference
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"` // UserID Reference
}

// SystemActorID marks records written by scheduled jobs and operator commands.
const SystemActorID = "system"

// Page describes a cursor-based page request.
type Page struct {
	Limit     int
	NextToken *string
}
