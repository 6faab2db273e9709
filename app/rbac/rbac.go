// Package rbac maps account roles to the permissions embedded in profiles and
// enforced by the transports.
package rbac

import (
	"sort"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

type Permission string

const (
	PermProfileRead         Permission = "profile:read"
	PermProfileWrite        Permission = "profile:write"
	PermEmployeesReadSelf   Permission = "employees:read_self"
	PermOnboardingReadSelf  Permission = "onboarding:read_self"
	PermOnboardingWriteSelf Permission = "onboarding:write_self"

	PermEmployeesRead  Permission = "employees:read"
	PermEmployeesWrite Permission = "employees:write"
	PermOnboardingRead Permission = "onboarding:read"
	PermReportsRead    Permission = "reports:read"

	PermEmployeesDelete Permission = "employees:delete"
	PermOnboardingWrite Permission = "onboarding:write"
	PermUsersRead       Permission = "users:read"
	PermUsersManage     Permission = "users:manage"
	PermRolesAssign     Permission = "roles:assign"
)

var (
	userPermissions = []Permission{
		PermProfileRead,
		PermProfileWrite,
		PermEmployeesReadSelf,
		PermOnboardingReadSelf,
		PermOnboardingWriteSelf,
	}

	managerPermissions = append(append([]Permission{}, userPermissions...),
		PermEmployeesRead,
		PermEmployeesWrite,
		PermOnboardingRead,
		PermReportsRead,
	)

	adminPermissions = append(append([]Permission{}, managerPermissions...),
		PermEmployeesDelete,
		PermOnboardingWrite,
		PermUsersRead,
		PermUsersManage,
		PermRolesAssign,
	)

	table = map[Role][]Permission{
		RoleAdmin:   sorted(adminPermissions),
		RoleManager: sorted(managerPermissions),
		RoleUser:    sorted(userPermissions),
	}
)

// ParseRole is case-insensitive. Anything unrecognised is RoleUser: a token
// must never carry a role without a permission mapping.
func ParseRole(raw string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := table[role]; ok {
		return role
	}
	return RoleUser
}

// IsKnown reports whether raw names a role exactly (modulo case).
func IsKnown(raw string) bool {
	_, ok := table[Role(strings.ToLower(strings.TrimSpace(raw)))]
	return ok
}

func (r Role) String() string {
	return string(r)
}

func (r Role) Permissions() []Permission {
	perms := table[ParseRole(string(r))]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

func (r Role) Has(p Permission) bool {
	for _, candidate := range table[ParseRole(string(r))] {
		if candidate == p {
			return true
		}
	}
	return false
}

func PermissionsFor(role string) []Permission {
	return ParseRole(role).Permissions()
}

func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func sorted(perms []Permission) []Permission {
	out := append([]Permission{}, perms...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
