package auth

// Permission is a fine-grained, namespaced capability tag.
type Permission string

const (
	PermCreateUser Permission = "create:user"
	PermReadUser   Permission = "read:user"
	PermUpdateUser Permission = "update:user"
	PermDeleteUser Permission = "delete:user"

	PermCreateComplaint Permission = "create:complaint"
	PermReadComplaint   Permission = "read:complaint"
	PermUpdateComplaint Permission = "update:complaint"
	PermDeleteComplaint Permission = "delete:complaint"
	PermAssignComplaint Permission = "assign:complaint"

	PermReadDepartment   Permission = "read:department"
	PermManageDepartment Permission = "manage:department"

	PermManageRoles Permission = "manage:roles"
	PermReadAudit   Permission = "read:audit"
)

// rolePermissions is the static role-to-permission catalog. It is a pure
// lookup table: nothing may mutate it at request time.
var rolePermissions = map[Role]map[Permission]struct{}{
	RoleAdmin: permSet(
		PermCreateUser, PermReadUser, PermUpdateUser, PermDeleteUser,
		PermCreateComplaint, PermReadComplaint, PermUpdateComplaint, PermDeleteComplaint, PermAssignComplaint,
		PermReadDepartment, PermManageDepartment,
		PermManageRoles, PermReadAudit,
	),
	RoleOfficer: permSet(
		PermReadUser,
		PermReadComplaint, PermUpdateComplaint, PermAssignComplaint,
		PermReadDepartment,
	),
	RoleEditor: permSet(
		PermReadUser,
		PermCreateComplaint, PermReadComplaint, PermUpdateComplaint,
		PermReadDepartment,
	),
	RoleViewer: permSet(
		PermReadComplaint,
		PermReadDepartment,
	),
	RoleCitizen: permSet(
		PermCreateComplaint, PermReadComplaint,
	),
	RoleUser: permSet(
		PermReadComplaint,
	),
}

func permSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether role carries perm. An unknown role has no
// permissions here; callers that need to distinguish that case must call
// ValidRole first.
func HasPermission(role Role, perm Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// HasAnyPermission reports whether role carries at least one of perms.
func HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role carries every one of perms.
func HasAllPermissions(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return len(perms) > 0
}

// CanAccessResource applies the owner bypass: a principal always reaches
// its own resources, otherwise the role must carry perm.
func CanAccessResource(p Principal, resourceOwnerID string, perm Permission) bool {
	if p.ID != "" && p.ID == resourceOwnerID {
		return true
	}
	return HasPermission(p.Role, perm)
}

// PermissionsFor returns the catalog entry for role. The returned map is a
// copy; mutating it does not touch the catalog.
func PermissionsFor(role Role) map[Permission]struct{} {
	set, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make(map[Permission]struct{}, len(set))
	for p := range set {
		out[p] = struct{}{}
	}
	return out
}
