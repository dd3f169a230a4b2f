package access

import "github.com/google/uuid"

// Role is the resolved operational category of a visitor
type Role = string

const (
	// RoleAnonymous means no identity is present
	RoleAnonymous Role = "anonymous"
	// RoleUser is a signed-in visitor with a profile and nothing else
	RoleUser Role = "user"
	// RoleBusinessOwner is a user whose profile links a business they own
	RoleBusinessOwner Role = "business_owner"
	// RoleAdmin matches an active, non-locked back-office membership
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleAnonymous, RoleUser, RoleBusinessOwner, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, IsValidRole(role)
}

// AllRoles returns the predefined roles
func AllRoles() []Role {
	return []Role{
		RoleAnonymous,
		RoleUser,
		RoleBusinessOwner,
		RoleAdmin,
	}
}

// Verdict is the outcome of one role resolution. Exactly one role holds at a
// time. Err is a separate channel: a verdict can be anonymous-shaped while
// carrying an error that distinguishes it from confirmed anonymity.
type Verdict struct {
	Role Role
	// BusinessID is auxiliary data, populated for business owners and for
	// admins who also own a business. UI decides on it, not on the role.
	BusinessID *uuid.UUID
	// Permissions is the admin capability set, nil for everyone else.
	Permissions map[string]bool
	Err         error
}

// Anonymous is the verdict for a confirmed absence of identity.
func Anonymous() Verdict {
	return Verdict{Role: RoleAnonymous}
}

// HasError reports whether the resolution failed. Callers must branch on
// this independently of the role field.
func (v Verdict) HasError() bool {
	return v.Err != nil
}

// Can checks a single capability flag. Flags only mean something on an
// admin verdict.
func (v Verdict) Can(flag string) bool {
	if v.Role != RoleAdmin || v.Permissions == nil {
		return false
	}
	return v.Permissions[flag]
}

// OwnsBusiness reports whether the verdict carries verified ownership. An
// admin's auxiliary business id does not count.
func (v Verdict) OwnsBusiness() bool {
	return v.Role == RoleBusinessOwner && v.BusinessID != nil
}
