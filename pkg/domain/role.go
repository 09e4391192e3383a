package domain

import dErrors "kycflow/pkg/domain-errors"

// Role is the marketplace role a user onboards as. Each role has its own
// intake questionnaire.
//
// Usage: construct via ParseRole at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Role string

const (
	RoleSurrogate       Role = "surrogate"
	RoleDonor           Role = "donor"
	RoleIntendingParent Role = "intending_parent"
	RoleAgency          Role = "agency"
)

var validRoles = map[Role]bool{
	RoleSurrogate:       true,
	RoleDonor:           true,
	RoleIntendingParent: true,
	RoleAgency:          true,
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// Roles lists every supported role in a stable order.
func Roles() []Role {
	return []Role{RoleSurrogate, RoleDonor, RoleIntendingParent, RoleAgency}
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}
