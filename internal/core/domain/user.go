package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role is ordered: a higher value satisfies every requirement of a lower one.
type Role int

const (
	RoleUnknown Role = iota
	RoleCustomer
	RoleStaff
	RoleBranchManager
	RoleExchangeAdmin
	RoleSuper
)

var roleNames = map[Role]string{
	RoleCustomer:      "customer",
	RoleStaff:         "staff",
	RoleBranchManager: "branch-manager",
	RoleExchangeAdmin: "exchange-admin",
	RoleSuper:         "super",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// AtLeast reports whether r satisfies the required role.
func (r Role) AtLeast(required Role) bool {
	return r != RoleUnknown && r >= required
}

// ParseRole maps a stored or requested role name to a Role.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Permission is a token from the closed set each operation declares against.
type Permission string

const (
	PermAccountRead     Permission = "account:read"
	PermAccountWrite    Permission = "account:write"
	PermAccountFreeze   Permission = "account:freeze"
	PermTransfer        Permission = "ledger:transfer"
	PermExchange        Permission = "ledger:exchange"
	PermTrade           Permission = "ledger:trade"
	PermPayment         Permission = "ledger:payment"
	PermFee             Permission = "ledger:fee"
	PermAdjust          Permission = "ledger:adjust"
	PermRefund          Permission = "ledger:refund"
	PermRollback        Permission = "ledger:rollback"
	PermTransactionRead Permission = "ledger:read"
	PermJournalRead     Permission = "journal:read"
	PermAuditRead       Permission = "audit:read"
	PermRateWrite       Permission = "fx:write"
	PermTenantAdmin     Permission = "tenant:admin"
	PermUserAdmin       Permission = "user:admin"
)

var allPermissions = []Permission{
	PermAccountRead, PermAccountWrite, PermAccountFreeze, PermTransfer, PermExchange, PermTrade,
	PermPayment, PermFee, PermAdjust, PermRefund, PermRollback, PermTransactionRead,
	PermJournalRead, PermAuditRead, PermRateWrite, PermTenantAdmin, PermUserAdmin,
}

// IsValid reports whether p belongs to the closed permission set.
func (p Permission) IsValid() bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// PermissionSet is a bag of permission tokens.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from tokens.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Missing returns the required tokens absent from the set, sorted.
func (s PermissionSet) Missing(required []Permission) []Permission {
	var missing []Permission
	for _, p := range required {
		if !s.Has(p) {
			missing = append(missing, p)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Slice returns the tokens sorted.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultPermissions is the grant a role receives when a user has no explicit set.
func DefaultPermissions(role Role) PermissionSet {
	customer := []Permission{PermAccountRead, PermTransfer, PermExchange, PermTransactionRead}
	staff := append(append([]Permission{}, customer...),
		PermTrade, PermPayment, PermFee, PermAccountWrite, PermJournalRead)
	manager := append(append([]Permission{}, staff...),
		PermAccountFreeze, PermRefund, PermRollback, PermAuditRead, PermRateWrite)
	admin := append(append([]Permission{}, manager...), PermAdjust, PermTenantAdmin, PermUserAdmin)

	switch role {
	case RoleCustomer:
		return NewPermissionSet(customer...)
	case RoleStaff:
		return NewPermissionSet(staff...)
	case RoleBranchManager:
		return NewPermissionSet(manager...)
	case RoleExchangeAdmin, RoleSuper:
		return NewPermissionSet(admin...)
	default:
		return NewPermissionSet()
	}
}

// User represents a user of the back office. Super users carry no tenant.
type User struct {
	UserID      string       `json:"userID"`   // Primary Key (e.g., UUID)
	TenantID    *string      `json:"tenantID"` // Nil only for the super role
	Email       string       `json:"email"`    // Unique per tenant
	Name        string       `json:"name"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"` // Empty means the role default
	BranchID    *string      `json:"branchID,omitempty"`
	IsActive    bool         `json:"isActive"`
	AuditFields
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

// EffectivePermissions resolves the explicit grant or the role default.
func (u User) EffectivePermissions() PermissionSet {
	if len(u.Permissions) == 0 {
		return DefaultPermissions(u.Role)
	}
	return NewPermissionSet(u.Permissions...)
}

// Actor is the authenticated principal behind a core call.
type Actor struct {
	UserID      string
	TenantID    string // Empty for super users and the system actor
	Role        Role
	Permissions PermissionSet
	IP          string
	UserAgent   string
}

// IsSuper reports whether the actor bypasses tenant scoping.
func (a Actor) IsSuper() bool {
	return a.Role == RoleSuper
}

// ActorFromUser builds an Actor for u with the request metadata.
func ActorFromUser(u User, ip, userAgent string) Actor {
	tenantID := ""
	if u.TenantID != nil {
		tenantID = *u.TenantID
	}
	return Actor{
		UserID:      u.UserID,
		TenantID:    tenantID,
		Role:        u.Role,
		Permissions: u.EffectivePermissions(),
		IP:          ip,
		UserAgent:   userAgent,
	}
}

// SystemActor is used by scheduled jobs and operator commands.
func SystemActor() Actor {
	return Actor{UserID: SystemActorID, Role: RoleSuper, Permissions: NewPermissionSet(allPermissions...)}
}
