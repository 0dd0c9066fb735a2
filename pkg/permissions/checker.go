// Package permissions checks a user's granted permissions against a required one.
//
// Permission format:
//   - "*" full access
//   - "resource.*" all actions on a resource (e.g. "drivers.*")
//   - "resource.action" a specific action (e.g. "drivers.review")
package permissions

import (
	"strings"
)

// Known permissions
const (
	DriversReview = "drivers.review"
	DriversRead   = "drivers.read"
	UsersRead     = "users.read"
	IdentityRead  = "identity.read"
)

// HasPermission checks if the user's permissions include the required permission.
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission checks if the user has any of the required permissions.
func HasAnyPermission(userPerms []string, required []string) bool {
	for _, req := range required {
		if HasPermission(userPerms, req) {
			return true
		}
	}
	return false
}

// Parse splits the comma separated X-User-Permissions header value.
func Parse(header string) []string {
	var perms []string
	for _, p := range strings.Split(header, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return perms
}

// Join is the inverse of Parse.
func Join(perms []string) string {
	return strings.Join(perms, ",")
}

// RolePermissions are the grants implied by a role claim when a token
// carries no explicit permissions.
var RolePermissions = map[string][]string{
	"admin":     {"*"},
	"reviewer":  {DriversReview, DriversRead, UsersRead},
	"support":   {DriversRead, UsersRead, IdentityRead},
	"driver":    {},
	"passenger": {},
}

// ForRole returns the permissions implied by a role.
func ForRole(role string) []string {
	return RolePermissions[role]
}
