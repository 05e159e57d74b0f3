package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Role is the organizational role of a user
type Role string

const (
	RoleCEO       Role = "CEO"
	RoleExecutive Role = "EXECUTIVE"
	RoleManager   Role = "MANAGER"
	RoleEmployee  Role = "EMPLOYEE"
)

// Roles lists every known role, most privileged first
var Roles = []Role{RoleCEO, RoleExecutive, RoleManager, RoleEmployee}

// ParseRole normalizes a role name
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(Roles, r) {
		return "", &Error{Type: ErrInvalidCredentials, Message: fmt.Sprintf("unknown role %q", s)}
	}
	return r, nil
}

// Principal represents an authenticated user
type Principal struct {
	ID   string
	Role Role
}

// HasRole reports whether the principal holds one of roles
func (p *Principal) HasRole(roles ...Role) bool {
	return p != nil && slices.Contains(roles, p.Role)
}

// Credentials represents authentication credentials
type Credentials struct {
	Username string
	Password string
}

// ErrorType represents the type of authentication error
type ErrorType string

const (
	ErrInvalidCredentials ErrorType = "invalid_credentials"
	ErrUnauthorized       ErrorType = "unauthorized"
	ErrForbidden          ErrorType = "forbidden"
)

// Error represents an authentication-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsForbidden reports whether err is an authorization failure
func IsForbidden(err error) bool {
	var aerr *Error
	return errors.As(err, &aerr) && aerr.Type == ErrForbidden
}

// Authenticator defines the interface for authentication providers
type Authenticator interface {
	// Authenticate validates credentials and returns a Principal if successful
	Authenticate(ctx context.Context, creds Credentials) (*Principal, error)

	// ValidateAccess checks if a principal has access to a given path
	ValidateAccess(ctx context.Context, principal *Principal, path string) error
}
