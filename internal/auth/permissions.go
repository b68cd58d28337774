package auth

import (
	"errors"
	"slices"
)

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read operation history and stream logs.
	RoleViewer Role = "viewer"

	// RoleOperator can also start and stop operations.
	RoleOperator Role = "operator"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermHistoryRead  Permission = "history:read"
	PermValveOperate Permission = "valve:operate"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermHistoryRead,
	},
	RoleOperator: {
		PermHistoryRead,
		PermValveOperate,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// Errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrUnknownRole  = errors.New("auth: unknown role")
	ErrForbidden    = errors.New("auth: insufficient permissions")
)
