package authzkit

import (
	"errors"
	"fmt"
)

// Sentinel errors for AuthzKit operations.
var (
	// ErrDuplicateCode is returned when a (organization, code) pair already exists.
	ErrDuplicateCode = errors.New("authzkit: duplicate code")

	// ErrInvalidScope is returned when a code or scope violates the naming rules.
	ErrInvalidScope = errors.New("authzkit: invalid scope")

	// ErrScopeMismatch is returned when a grant would bind a role and a
	// permission with incompatible organization scopes.
	ErrScopeMismatch = errors.New("authzkit: scope mismatch")

	// ErrRoleScopeViolation is returned when assigning an organization role
	// to a user outside that organization.
	ErrRoleScopeViolation = errors.New("authzkit: role scope violation")

	// ErrSystemRoleImmutable is returned when a non-privileged actor tries to
	// delete a system role or change its code or scope.
	ErrSystemRoleImmutable = errors.New("authzkit: system role immutable")

	// ErrRoleInUse is returned when deleting a role that still has active
	// assignments and cascade was not requested.
	ErrRoleInUse = errors.New("authzkit: role in use")

	// ErrPermissionInUse is returned when retiring a permission that active
	// grants still reference.
	ErrPermissionInUse = errors.New("authzkit: permission in use")

	// ErrNotFound is returned when a referenced role, permission or
	// assignment does not exist.
	ErrNotFound = errors.New("authzkit: not found")

	// ErrAuditWriteFailed is returned when the audit record could not be
	// written; the enclosing mutation is rolled back.
	ErrAuditWriteFailed = errors.New("authzkit: audit write failed")

	// ErrNoActorID is returned when actor ID is not found in context for a mutation.
	ErrNoActorID = errors.New("authzkit: no actor ID in context")

	// ErrNoUserID is returned when user ID is not found in context.
	ErrNoUserID = errors.New("authzkit: no user ID in context")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("authzkit: database error")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err            error  // Underlying sentinel error
	Message        string // Additional context
	OrganizationID string // Organization involved (if applicable)
	RoleID         string // Role involved (if applicable)
	PermissionCode string // Permission involved (if applicable)
	UserID         string // User involved (if applicable)
	ActorID        string // Actor who triggered the error (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithOrganization adds organization information to the error.
func (e *Error) WithOrganization(orgID string) *Error {
	e.OrganizationID = orgID
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(roleID string) *Error {
	e.RoleID = roleID
	return e
}

// WithPermission adds permission information to the error.
func (e *Error) WithPermission(code string) *Error {
	e.PermissionCode = code
	return e
}

// WithUser adds user information to the error.
func (e *Error) WithUser(userID string) *Error {
	e.UserID = userID
	return e
}

// WithActor adds actor information to the error.
func (e *Error) WithActor(actorID string) *Error {
	e.ActorID = actorID
	return e
}

// IsDuplicateCode checks if an error is a code collision.
func IsDuplicateCode(err error) bool {
	return errors.Is(err, ErrDuplicateCode)
}

// IsScopeMismatch checks if an error is a role/permission scope conflict.
func IsScopeMismatch(err error) bool {
	return errors.Is(err, ErrScopeMismatch)
}

// IsSystemRoleImmutable checks if an error is a protected-role violation.
func IsSystemRoleImmutable(err error) bool {
	return errors.Is(err, ErrSystemRoleImmutable)
}

// IsNotFound checks if an error is a missing-entity error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuditWriteFailed checks if an error is a failed audit append.
// Callers must treat this as a hard failure: the mutation did not happen.
func IsAuditWriteFailed(err error) bool {
	return errors.Is(err, ErrAuditWriteFailed)
}

// IsInvalidScope checks if an error is due to an invalid scope or code.
func IsInvalidScope(err error) bool {
	return errors.Is(err, ErrInvalidScope)
}

// IsRoleInUse checks if an error is due to live assignments blocking a delete.
func IsRoleInUse(err error) bool {
	return errors.Is(err, ErrRoleInUse)
}

// IsPermissionInUse checks if an error is due to live grants blocking a retire.
func IsPermissionInUse(err error) bool {
	return errors.Is(err, ErrPermissionInUse)
}
