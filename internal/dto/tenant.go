package dto

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// CreateTenantRequest defines the data needed to create a tenant.
type CreateTenantRequest struct {
	Code     string  `json:"code" binding:"required,min=2,max=32,alphanumunicode"`
	Name     string  `json:"name" binding:"required,max=128"`
	ParentID *string `json:"parentID"` // Nil creates a root
	Level    int     `json:"level" binding:"min=0,max=3"`
	OwnerID  string  `json:"ownerID" binding:"required"`
}

// MoveTenantRequest re-parents a tenant.
type MoveTenantRequest struct {
	NewParentID string `json:"newParentID" binding:"required"`
}

// TenantResponse mirrors domain.Tenant.
type TenantResponse struct {
	TenantID      string    `json:"tenantID"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	ParentID      *string   `json:"parentID"`
	Level         int       `json:"level"`
	IsActive      bool      `json:"isActive"`
	OwnerID       string    `json:"ownerID"`
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"`
}

// ToTenantResponse converts a domain.Tenant to its response DTO.
func ToTenantResponse(t *domain.Tenant) TenantResponse {
	return TenantResponse{
		TenantID:      t.TenantID,
		Code:          t.Code,
		Name:          t.Name,
		ParentID:      t.ParentID,
		Level:         t.Level,
		IsActive:      t.IsActive,
		OwnerID:       t.OwnerID,
		CreatedAt:     t.CreatedAt,
		CreatedBy:     t.CreatedBy,
		LastUpdatedAt: t.LastUpdatedAt,
		LastUpdatedBy: t.LastUpdatedBy,
	}
}

// ToListTenantResponse converts tenants to response DTOs.
func ToListTenantResponse(tenants []domain.Tenant) []TenantResponse {
	res := make([]TenantResponse, len(tenants))
	for i := range tenants {
		res[i] = ToTenantResponse(&tenants[i])
	}
	return res
}
