package auth

// Role is one of the closed set of roles known to the platform.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleOfficer Role = "officer"
	RoleEditor  Role = "editor"
	RoleViewer  Role = "viewer"
	RoleCitizen Role = "citizen"
	RoleUser    Role = "user"
)

// roleLevels assigns every role a position in the privilege hierarchy.
// Fixed at build time; request-time code only reads it.
var roleLevels = map[Role]int{
	RoleAdmin:   100,
	RoleOfficer: 60,
	RoleEditor:  50,
	RoleViewer:  30,
	RoleCitizen: 20,
	RoleUser:    10,
}

// ValidRole reports whether r names a role the platform knows about.
// Callers must check this before any permission lookup: an unknown role
// is ErrInvalidRole territory, not an empty permission set.
func ValidRole(r Role) bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the hierarchy position of r, or 0 for an unknown role.
func Level(r Role) int {
	return roleLevels[r]
}

// MeetsRoleRequirement reports whether role sits at or above minimum in
// the hierarchy. Both roles must be valid; an unknown role never meets
// any requirement.
func MeetsRoleRequirement(role, minimum Role) bool {
	lvl, ok := roleLevels[role]
	if !ok {
		return false
	}
	min, ok := roleLevels[minimum]
	if !ok {
		return false
	}
	return lvl >= min
}

// Roles returns the closed role set, ordered most to least privileged.
func Roles() []Role {
	return []Role{RoleAdmin, RoleOfficer, RoleEditor, RoleViewer, RoleCitizen, RoleUser}
}
