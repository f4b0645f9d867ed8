package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles, ordered by rank.
type Role uint8

const (
	roleUnknown Role = iota
	RoleReadonly
	RoleStaff
	RoleAdmin
	RoleOwner
	roleCount
)

var roleNames = [roleCount]string{
	roleUnknown:  "",
	RoleReadonly: "readonly",
	RoleStaff:    "staff",
	RoleAdmin:    "admin",
	RoleOwner:    "owner",
}

// ParseRole converts the persisted or transported role name into a Role.
func ParseRole(value string) (Role, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for role := RoleReadonly; role < roleCount; role++ {
		if roleNames[role] == value {
			return role, nil
		}
	}
	return roleUnknown, fmt.Errorf("%w: unknown role %q", ErrValidation, value)
}

// Roles lists every valid role from lowest to highest rank.
func Roles() []Role {
	return []Role{RoleReadonly, RoleStaff, RoleAdmin, RoleOwner}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r > roleUnknown && r < roleCount
}

// Rank returns the position of the role in the hierarchy; zero for invalid roles.
func (r Role) Rank() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

func (r Role) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return roleNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: invalid role %d", ErrValidation, r)
	}
	return []byte(roleNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Permission is the closed set of capabilities checked by the API.
type Permission uint8

const (
	PermVendorRead Permission = iota
	PermVendorWrite
	PermCatalogRead
	PermCatalogWrite
	PermBookingRead
	PermBookingWrite
	PermTeamRead
	PermTeamManage
	PermSessionRevoke
	PermBillingManage
	PermTenantDelete
	permissionCount
)

var permissionNames = [permissionCount]string{
	PermVendorRead:    "vendor:read",
	PermVendorWrite:   "vendor:write",
	PermCatalogRead:   "catalog:read",
	PermCatalogWrite:  "catalog:write",
	PermBookingRead:   "booking:read",
	PermBookingWrite:  "booking:write",
	PermTeamRead:      "team:read",
	PermTeamManage:    "team:manage",
	PermSessionRevoke: "session:revoke",
	PermBillingManage: "billing:manage",
	PermTenantDelete:  "tenant:delete",
}

// ParsePermission resolves a permission name such as "vendor:write".
func ParsePermission(value string) (Permission, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for p := Permission(0); p < permissionCount; p++ {
		if permissionNames[p] == value {
			return p, nil
		}
	}
	return permissionCount, fmt.Errorf("%w: unknown permission %q", ErrValidation, value)
}

func (p Permission) String() string {
	if p >= permissionCount {
		return "unknown"
	}
	return permissionNames[p]
}

// PermissionSet is a bitmask over Permission.
type PermissionSet uint32

func permissionSetOf(perms ...Permission) PermissionSet {
	var set PermissionSet
	for _, p := range perms {
		set |= 1 << p
	}
	return set
}

// Has reports whether p is a member of the set.
func (s PermissionSet) Has(p Permission) bool {
	return p < permissionCount && s&(1<<p) != 0
}

// Permissions lists the members of the set in declaration order.
func (s PermissionSet) Permissions() []Permission {
	out := make([]Permission, 0, permissionCount)
	for p := Permission(0); p < permissionCount; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

var (
	readonlyPermissions = permissionSetOf(PermVendorRead, PermCatalogRead, PermBookingRead, PermTeamRead)
	// staff manage day-to-day catalog and bookings but never the vendor profile.
	staffPermissions = readonlyPermissions | permissionSetOf(PermCatalogWrite, PermBookingWrite)
	adminPermissions = staffPermissions | permissionSetOf(PermVendorWrite, PermTeamManage, PermSessionRevoke)
	ownerPermissions = adminPermissions | permissionSetOf(PermBillingManage, PermTenantDelete)
)

// rolePermissions is indexed by Role; its length is tied to roleCount.
var rolePermissions = [roleCount]PermissionSet{
	roleUnknown:  0,
	RoleReadonly: readonlyPermissions,
	RoleStaff:    staffPermissions,
	RoleAdmin:    adminPermissions,
	RoleOwner:    ownerPermissions,
}

// PermissionsOf returns the static permission set granted to role.
func PermissionsOf(role Role) PermissionSet {
	if !role.Valid() {
		return 0
	}
	return rolePermissions[role]
}

// HasRole reports whether userRole ranks at or above minRole.
func HasRole(userRole, minRole Role) bool {
	if !userRole.Valid() || !minRole.Valid() {
		return false
	}
	return userRole.Rank() >= minRole.Rank()
}

// HasPermission reports whether role grants permission.
func HasPermission(role Role, permission Permission) bool {
	return PermissionsOf(role).Has(permission)
}

// RequireVendorAccess enforces tenant isolation independent of role.
func RequireVendorAccess(callerTenantID, targetTenantID string) error {
	if callerTenantID == "" || callerTenantID != targetTenantID {
		return ErrTenantMismatch
	}
	return nil
}

// Authorize combines a permission check with tenant isolation for a principal.
func Authorize(principal Principal, permission Permission, targetTenantID string) error {
	if !HasPermission(principal.Role, permission) {
		return ErrPermissionDenied
	}
	if targetTenantID == "" {
		return nil
	}
	return RequireVendorAccess(principal.TenantID, targetTenantID)
}
