package authzkit

import (
	"strings"
)

// Permission codes follow the "resource.action" convention: two or more
// dot-separated identifier parts, e.g. "chats.handle" or "users.delete".
// Role codes are a single identifier, e.g. "agent" or "super_admin".

// ValidatePermissionCode checks that a code follows the resource.action
// convention. Returns ErrInvalidScope on violation, so catalog callers get
// the same taxonomy for naming and scoping faults.
func ValidatePermissionCode(code string) error {
	if code == "" {
		return NewError(ErrInvalidScope, "permission code cannot be empty")
	}

	parts := strings.Split(code, ".")
	if len(parts) < 2 {
		return NewError(ErrInvalidScope, "permission code must have at least two parts (resource.action)").
			WithPermission(code)
	}

	for _, part := range parts {
		if part == "" {
			return NewError(ErrInvalidScope, "permission code parts cannot be empty").
				WithPermission(code)
		}
		for _, c := range part {
			if !isValidCodeChar(c) {
				return NewError(ErrInvalidScope, "permission code contains invalid character").
					WithPermission(code)
			}
		}
	}

	return nil
}

// ValidateRoleCode checks that a role code is a single identifier.
func ValidateRoleCode(code string) error {
	if code == "" {
		return NewError(ErrInvalidScope, "role code cannot be empty")
	}

	for _, c := range code {
		if !isValidCodeChar(c) {
			return NewError(ErrInvalidScope, "role code contains invalid character").
				WithRole(code)
		}
	}

	return nil
}

// SplitPermissionCode splits a code into its resource and action halves.
// The action is the last segment; everything before it is the resource,
// so "kb.articles.publish" yields ("kb.articles", "publish").
func SplitPermissionCode(code string) (resource, action string) {
	idx := strings.LastIndex(code, ".")
	if idx < 0 {
		return code, ""
	}
	return code[:idx], code[idx+1:]
}

func isValidCodeChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}
