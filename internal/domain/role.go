package domain

import "strings"

// Role gates which portal a user can reach
type Role string

const (
	RoleCitizen     Role = "citizen"
	RoleRagpicker   Role = "ragpicker"
	RoleInstitution Role = "institution"
	RoleAdmin       Role = "admin"
)

// DefaultRole is assigned when nothing else determines a role
const DefaultRole = RoleCitizen

// AllRoles lists every valid role
var AllRoles = []Role{RoleCitizen, RoleRagpicker, RoleInstitution, RoleAdmin}

// IsValidRole reports whether r names one of the four roles
func IsValidRole(r string) bool {
	switch Role(r) {
	case RoleCitizen, RoleRagpicker, RoleInstitution, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalizes user input into a Role
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !IsValidRole(s) {
		return "", false
	}
	return Role(s), true
}

// RoleDefaultRoute returns the post-auth landing page for a role.
// Unknown or empty roles land on the citizen dashboard.
func RoleDefaultRoute(r Role) string {
	switch r {
	case RoleRagpicker:
		return RouteRagpickerTasks
	case RoleInstitution:
		return RouteOrgDashboard
	case RoleAdmin:
		return RouteAdminOverview
	default:
		return RouteCitizenDashboard
	}
}

// RoleDisplayName is the label shown in navigation
func RoleDisplayName(r Role) string {
	switch r {
	case RoleCitizen:
		return "Citizen"
	case RoleRagpicker:
		return "Kiosk Operator"
	case RoleInstitution:
		return "Institution"
	case RoleAdmin:
		return "Administrator"
	default:
		return "User"
	}
}
