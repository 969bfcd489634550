package model

import "fmt"

// Role is a privilege level carried by every issued token. The three
// standard roles form an ordered hierarchy: a higher role satisfies any
// check that requires a lower one. RoleWebhook sits outside the hierarchy
// entirely and is only usable on its own allowlisted paths.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"

	// RoleWebhook is the synthetic role assigned to trusted webhook-origin
	// calls. It never inherits from (or grants) the standard hierarchy.
	RoleWebhook Role = "webhook"
)

// roleRank orders the standard hierarchy. RoleWebhook is deliberately
// absent: comparing it by rank is always a bug.
var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ParseRole validates a raw role string from a token claim or CLI flag.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleViewer, RoleOperator, RoleAdmin, RoleWebhook:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Satisfies reports whether the role meets a minimum required role within
// the standard hierarchy. RoleWebhook on either side never satisfies a
// hierarchical requirement.
func (r Role) Satisfies(min Role) bool {
	got, ok := roleRank[r]
	if !ok {
		return false
	}
	want, ok := roleRank[min]
	if !ok {
		return false
	}
	return got >= want
}

// IsHierarchical reports whether the role participates in the ordered
// viewer/operator/admin hierarchy.
func (r Role) IsHierarchical() bool {
	_, ok := roleRank[r]
	return ok
}
