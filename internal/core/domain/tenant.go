package domain

// Tenant levels run from the platform root (0) down to sub-branches (3).
const (
	MinTenantLevel = 0
	MaxTenantLevel = 3

	// MaxHierarchyDepth bounds every ancestor walk.
	MaxHierarchyDepth = 32
)

// Tenant is a node of the tenant forest. The parent is a stored id, never a pointer.
type Tenant struct {
	TenantID string  `json:"tenantID"` // Primary Key (e.g., UUID)
	Code     string  `json:"code"`     // Unique, human readable
	Name     string  `json:"name"`
	ParentID *string `json:"parentID"` // Nullable for roots
	Level    int     `json:"level"`    // 0..3, strictly greater than the parent's
	IsActive bool    `json:"isActive"`
	OwnerID  string  `json:"ownerID"`
	AuditFields
}

// IsRoot reports whether the tenant has no parent.
func (t Tenant) IsRoot() bool {
	return t.ParentID == nil || *t.ParentID == ""
}

// TenantAction is the access class requested against a tenant.
type TenantAction string

const (
	ActionRead  TenantAction = "read"
	ActionWrite TenantAction = "write"
)

// AccessDecision is the outcome of resolving an actor against a tenant.
type AccessDecision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`
}
