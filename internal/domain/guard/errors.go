package guard

import (
	"errors"
	"fmt"

	"github.com/toolwarden/toolwarden/internal/domain/ratelimit"
	"github.com/toolwarden/toolwarden/internal/domain/validation"
)

// Sentinel errors for pipeline failures. Stage interceptors return typed
// errors that unwrap to these, so callers can classify with errors.Is
// without losing the payload.
var (
	// ErrUnauthenticated indicates credential verification failed.
	ErrUnauthenticated = errors.New("authentication failed")

	// ErrAccessDenied indicates the authorization engine denied the
	// operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrInternal indicates an unexpected pipeline failure.
	ErrInternal = errors.New("internal error")
)

// AuthenticationError reports a failed authentication attempt. Reason is
// one of the auth package's caller-facing reason strings.
type AuthenticationError struct {
	Reason string
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// Unwrap returns ErrUnauthenticated so errors.Is(err, ErrUnauthenticated)
// works.
func (e *AuthenticationError) Unwrap() error {
	return ErrUnauthenticated
}

// AccessDeniedError reports an authorization denial along with the
// decision that produced it.
type AccessDeniedError struct {
	Action   string
	Resource string
	RuleName string
	Reason   string
}

// Error implements the error interface.
func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for %s on %s: %s", e.Action, e.Resource, e.Reason)
}

// Unwrap returns ErrAccessDenied so errors.Is(err, ErrAccessDenied) works.
func (e *AccessDeniedError) Unwrap() error {
	return ErrAccessDenied
}

// Check kinds reported in audit details and metrics labels.
const (
	KindValidation     = "validation"
	KindAuthentication = "authentication"
	KindRateLimit      = "rate_limit"
	KindAuthorization  = "authorization"
	KindInternal       = "internal"
)

// ErrorKind names the check that produced err.
func ErrorKind(err error) string {
	var valErr *validation.Error
	if errors.As(err, &valErr) {
		return KindValidation
	}
	var rateErr *ratelimit.Error
	if errors.As(err, &rateErr) {
		return KindRateLimit
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return KindAuthentication
	case errors.Is(err, ErrAccessDenied):
		return KindAuthorization
	default:
		return KindInternal
	}
}

// SafeErrorMessage maps a pipeline error to a client-safe string. The
// message names the failing check but never exposes rule internals,
// stored credentials, or denylist patterns.
func SafeErrorMessage(err error) string {
	var rateErr *ratelimit.Error
	if errors.As(err, &rateErr) {
		return fmt.Sprintf("Rate limit exceeded, retry after %d seconds", rateErr.RetryAfterSeconds())
	}
	var valErr *validation.Error
	if errors.As(err, &valErr) {
		return fmt.Sprintf("Invalid %s", valErr.Input)
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		// Reasons are the fixed caller-facing strings from the auth
		// package, already safe to return.
		return authErr.Reason
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Authentication required"
	case errors.Is(err, ErrAccessDenied):
		return "Access denied"
	default:
		return "Internal error"
	}
}
