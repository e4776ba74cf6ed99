package access

import (
	"errors"
	"strings"
)

// Role identifies a privilege level carried by a session.
type Role string

// Supported roles, most privileged first.
const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
	RoleClient  Role = "CLIENT"
)

// ErrUnknownRole is returned when a role name is not part of the closed set.
var ErrUnknownRole = errors.New("access: unknown role")

// RoleOrder lists roles from most to least privileged.
var RoleOrder = []Role{RoleAdmin, RoleManager, RoleStaff, RoleClient}

// ParseRole converts a raw claim value into a Role.
func ParseRole(raw string) (Role, error) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(raw)))
	for _, r := range RoleOrder {
		if r == candidate {
			return r, nil
		}
	}
	return "", ErrUnknownRole
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	for _, known := range RoleOrder {
		if r == known {
			return true
		}
	}
	return false
}

// Hierarchy maps every role to the set of roles it dominates, itself included.
type Hierarchy map[Role]map[Role]struct{}

// NewHierarchy builds a dominance table from a linear order, most privileged first.
// Each role dominates itself and everything after it.
func NewHierarchy(order []Role) Hierarchy {
	h := make(Hierarchy, len(order))
	for i, superior := range order {
		dominated := make(map[Role]struct{}, len(order)-i)
		for _, inferior := range order[i:] {
			dominated[inferior] = struct{}{}
		}
		h[superior] = dominated
	}
	return h
}

// DefaultHierarchy is ADMIN > MANAGER > STAFF > CLIENT.
var DefaultHierarchy = NewHierarchy(RoleOrder)

// Satisfies reports whether userRole dominates requiredRole.
func (h Hierarchy) Satisfies(userRole, requiredRole Role) bool {
	dominated, ok := h[userRole]
	if !ok {
		return false
	}
	_, ok = dominated[requiredRole]
	return ok
}

// RoleSatisfies evaluates the default hierarchy.
func RoleSatisfies(userRole, requiredRole Role) bool {
	return DefaultHierarchy.Satisfies(userRole, requiredRole)
}

// UnauthorizedPath is the landing page for callers without a usable dashboard.
const UnauthorizedPath = "/unauthorized"

var dashboards = map[Role]string{
	RoleAdmin:   "/dashboard/admin",
	RoleManager: "/dashboard/manager",
	RoleStaff:   "/dashboard/staff",
	RoleClient:  "/dashboard/client",
}

// DashboardFor returns the landing page of a role.
func DashboardFor(role Role) string {
	if path, ok := dashboards[role]; ok {
		return path
	}
	return UnauthorizedPath
}
