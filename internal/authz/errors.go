package authz

import "errors"

var (
	// ErrRoleNotFound indicates the referenced role does not exist.
	ErrRoleNotFound = errors.New("authz: role not found")
	// ErrDuplicateName indicates a role name collision.
	ErrDuplicateName = errors.New("authz: duplicate role name")
	// ErrDuplicateCode indicates a role code collision.
	ErrDuplicateCode = errors.New("authz: duplicate role code")
	// ErrAlreadyAssigned indicates the (user, role) pair already exists.
	ErrAlreadyAssigned = errors.New("authz: role already assigned")
	// ErrNotAssigned indicates the (user, role) pair does not exist.
	ErrNotAssigned = errors.New("authz: role not assigned")
	// ErrReferentialViolation indicates an assignment referencing a
	// nonexistent user or role.
	ErrReferentialViolation = errors.New("authz: unknown user or role")
	// ErrInvalidToken indicates a permission token outside the
	// resource:action grammar.
	ErrInvalidToken = errors.New("authz: malformed permission token")
	// ErrInvalidName indicates an empty role name or a code outside the
	// machine-identifier grammar.
	ErrInvalidName = errors.New("authz: invalid role name or code")
)
