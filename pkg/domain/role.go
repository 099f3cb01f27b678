package domain

import dErrors "docgate/pkg/domain-errors"

// Role is the caller's authorisation role, carried as a token claim.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleMaker    Role = "maker"
	RoleVerifier Role = "verifier"
	RoleAdmin    Role = "admin"
)

// ParseRole constructs a Role from a token claim.
//
// Errors: CodeInvalidInput when the value is not a known role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCitizen, RoleMaker, RoleVerifier, RoleAdmin:
		return r, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
}

// IsStaff reports whether the role may act on documents owned by others.
func (r Role) IsStaff() bool {
	return r == RoleMaker || r == RoleVerifier || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
