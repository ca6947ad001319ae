// Package auth contains the domain types and logic for authentication.
package auth

import (
	"time"
)

// Mode selects how callers are authenticated.
type Mode string

const (
	// ModeNone performs no credential inspection and yields a fixed
	// low-privilege identity.
	ModeNone Mode = "none"
	// ModeBasic verifies username and password against a credential store.
	ModeBasic Mode = "basic"
	// ModeToken verifies a signed stateless token.
	ModeToken Mode = "token"
)

// IsValid returns true if the mode is a known authentication mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeNone, ModeBasic, ModeToken:
		return true
	default:
		return false
	}
}

// Role represents a user role for authorization purposes.
type Role string

const (
	// RoleAdmin has full access to all operations.
	RoleAdmin Role = "admin"
	// RoleUser has standard access to most operations.
	RoleUser Role = "user"
	// RoleGuest has minimal access, granted to anonymous callers.
	RoleGuest Role = "guest"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return true
	default:
		return false
	}
}

// RoleStrings converts roles to their plain string form for encoding.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// RolesFromStrings converts plain strings back to roles. Unknown role
// names are preserved as-is so decoded identities round-trip.
func RolesFromStrings(names []string) []Role {
	out := make([]Role, len(names))
	for i, n := range names {
		out[i] = Role(n)
	}
	return out
}

// User represents a verified identity. Created on successful
// authentication and immutable afterwards.
type User struct {
	// ID is the unique identifier for this user.
	ID string
	// Roles are the roles assigned to this user.
	Roles []Role
	// Metadata carries opaque key/value pairs attached at authentication.
	Metadata map[string]any
	// AuthenticatedAt is when this identity was established (UTC).
	AuthenticatedAt time.Time
}

// NewUser creates a user authenticated now.
func NewUser(id string, roles ...Role) *User {
	return &User{
		ID:              id,
		Roles:           roles,
		Metadata:        make(map[string]any),
		AuthenticatedAt: time.Now().UTC(),
	}
}

// AnonymousUser returns the identity used when security is disabled.
func AnonymousUser() *User {
	return NewUser("anonymous", RoleGuest)
}

// DefaultUser returns the identity used when authentication mode is none.
func DefaultUser() *User {
	return NewUser("default", RoleUser)
}

// HasRole returns true if the user has the specified role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the user has any of the specified roles.
func (u *User) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// Credentials carries the material supplied by a caller. Exactly one
// shape is meaningful per request: nothing, username+password, or a
// token. Consumed once by Authenticate.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// BasicCredentials builds username/password credentials.
func BasicCredentials(username, password string) Credentials {
	return Credentials{Username: username, Password: password}
}

// TokenCredentials builds token credentials.
func TokenCredentials(token string) Credentials {
	return Credentials{Token: token}
}

// Failure reasons carried by Result. These are caller-facing strings
// and deliberately say nothing about stored credentials.
const (
	ReasonMissingBasic       = "Username and password required"
	ReasonMissingToken       = "Token required"
	ReasonInvalidCredentials = "Invalid credentials"
	ReasonTokenExpired       = "Token expired"
	ReasonTokenInvalid       = "Invalid token"
	ReasonTimeout            = "timeout"
)

// Result is the outcome of one authentication attempt. Failure is a
// value, not an error: every branch of Authenticate returns a Result
// so callers must handle the failure path explicitly.
type Result struct {
	// Success is true when an identity was established.
	Success bool
	// User is the verified identity. Nil on failure.
	User *User
	// Token optionally carries a freshly minted token.
	Token string
	// Reason explains a failure. Empty on success.
	Reason string
}

// Fail builds a failed result with the given reason.
func Fail(reason string) Result {
	return Result{Success: false, Reason: reason}
}

// Succeed builds a successful result for the given user.
func Succeed(user *User) Result {
	return Result{Success: true, User: user}
}
