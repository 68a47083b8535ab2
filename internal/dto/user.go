package dto

import (
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

// CreateUserRequest defines the data needed to create a user.
type CreateUserRequest struct {
	TenantID    *string             `json:"tenantID"` // Nil only for super users
	Email       string              `json:"email" binding:"required,email"`
	Name        string              `json:"name" binding:"required,max=128"`
	Role        domain.Role         `json:"role" binding:"required"`
	Permissions []domain.Permission `json:"permissions"`
	BranchID    *string             `json:"branchID"`
}

// UserResponse mirrors domain.User.
type UserResponse struct {
	UserID        string              `json:"userID"`
	TenantID      *string             `json:"tenantID"`
	Email         string              `json:"email"`
	Name          string              `json:"name"`
	Role          domain.Role         `json:"role"`
	Permissions   []domain.Permission `json:"permissions"`
	BranchID      *string             `json:"branchID,omitempty"`
	IsActive      bool                `json:"isActive"`
	CreatedAt     time.Time           `json:"createdAt"`
	CreatedBy     string              `json:"createdBy"`
	DeactivatedAt *time.Time          `json:"deactivatedAt,omitempty"`
}

// ToUserResponse converts a domain.User, reporting the effective permission set.
func ToUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		UserID:        u.UserID,
		TenantID:      u.TenantID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		Permissions:   u.EffectivePermissions().Slice(),
		BranchID:      u.BranchID,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
		CreatedBy:     u.CreatedBy,
		DeactivatedAt: u.DeactivatedAt,
	}
}

// ToListUserResponse converts users to response DTOs.
func ToListUserResponse(users []domain.User) []UserResponse {
	res := make([]UserResponse, len(users))
	for i := range users {
		res[i] = ToUserResponse(&users[i])
	}
	return res
}
