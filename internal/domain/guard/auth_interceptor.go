package guard

import (
	"context"
	"log/slog"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

// AuthInterceptor establishes the caller's identity before any further
// check runs.
//
// Must be first in the chain: every stage below it keys on the verified
// identity. Raw credential material is never logged.
type AuthInterceptor struct {
	auth   *auth.Service
	next   Interceptor
	logger *slog.Logger
}

// NewAuthInterceptor creates an AuthInterceptor wrapping next.
func NewAuthInterceptor(svc *auth.Service, next Interceptor, logger *slog.Logger) *AuthInterceptor {
	return &AuthInterceptor{auth: svc, next: next, logger: logger}
}

// Intercept authenticates the invocation's credentials and attaches the
// verified identity. An invocation arriving with a resolved identity
// (a session already looked up by the transport) passes straight
// through.
func (a *AuthInterceptor) Intercept(ctx context.Context, inv *Invocation) (*Invocation, error) {
	if inv.User != nil {
		return a.next.Intercept(ctx, inv)
	}

	result := a.auth.Authenticate(ctx, inv.Credentials)
	if !result.Success {
		a.logger.Debug("authentication failed",
			"reason", result.Reason,
			"action", inv.Action,
			"resource", inv.Resource,
			"request_id", inv.RequestID,
		)
		return nil, &AuthenticationError{Reason: result.Reason}
	}

	inv.User = result.User
	return a.next.Intercept(ctx, inv)
}

// Compile-time check that AuthInterceptor implements Interceptor.
var _ Interceptor = (*AuthInterceptor)(nil)
