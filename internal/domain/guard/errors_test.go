package guard

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
	"github.com/toolwarden/toolwarden/internal/domain/ratelimit"
	"github.com/toolwarden/toolwarden/internal/domain/validation"
)

func TestAuthenticationError_Unwrap(t *testing.T) {
	t.Parallel()

	err := error(&AuthenticationError{Reason: auth.ReasonInvalidCredentials})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Error("expected AuthenticationError to unwrap to ErrUnauthenticated")
	}

	wrapped := fmt.Errorf("pipeline: %w", err)
	var authErr *AuthenticationError
	if !errors.As(wrapped, &authErr) {
		t.Fatal("expected errors.As to find AuthenticationError through wrapping")
	}
	if authErr.Reason != auth.ReasonInvalidCredentials {
		t.Errorf("unexpected reason %q", authErr.Reason)
	}
}

func TestAccessDeniedError_Unwrap(t *testing.T) {
	t.Parallel()

	err := error(&AccessDeniedError{
		Action:   "delete",
		Resource: "process",
		RuleName: "deny-deletes",
		Reason:   "matched rule deny-deletes",
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Error("expected AccessDeniedError to unwrap to ErrAccessDenied")
	}
	want := "access denied for delete on process: matched rule deny-deletes"
	if err.Error() != want {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation",
			err:  &validation.Error{Input: "command", Violations: []validation.Violation{{Rule: validation.RuleMaxLength}}},
			want: KindValidation,
		},
		{
			name: "rate limit",
			err:  &ratelimit.Error{Key: "u:r", RetryAfter: time.Second},
			want: KindRateLimit,
		},
		{
			name: "authentication",
			err:  &AuthenticationError{Reason: auth.ReasonTokenExpired},
			want: KindAuthentication,
		},
		{
			name: "authorization",
			err:  &AccessDeniedError{Reason: "no matching rule (default deny)"},
			want: KindAuthorization,
		},
		{
			name: "wrapped rate limit",
			err:  fmt.Errorf("chain: %w", &ratelimit.Error{RetryAfter: time.Second}),
			want: KindRateLimit,
		},
		{
			name: "internal",
			err:  errors.New("boom"),
			want: KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "rate limit includes retry hint",
			err:  &ratelimit.Error{Key: "user-1:process", RetryAfter: 30 * time.Second},
			want: "Rate limit exceeded, retry after 30 seconds",
		},
		{
			name: "validation names the input only",
			err: &validation.Error{
				Input:      "command",
				Violations: []validation.Violation{{Rule: validation.RuleDangerousPattern, Detail: "dangerous command pattern: fork bomb"}},
			},
			want: "Invalid command",
		},
		{
			name: "authentication reason passes through",
			err:  &AuthenticationError{Reason: auth.ReasonTokenExpired},
			want: auth.ReasonTokenExpired,
		},
		{
			name: "bare unauthenticated sentinel",
			err:  ErrUnauthenticated,
			want: "Authentication required",
		},
		{
			name: "access denied is generic",
			err:  &AccessDeniedError{Action: "delete", Resource: "process", Reason: "matched rule deny-deletes"},
			want: "Access denied",
		},
		{
			name: "internal errors are opaque",
			err:  fmt.Errorf("%w: authorization evaluation: boom", ErrInternal),
			want: "Internal error",
		},
		{
			name: "unknown errors are opaque",
			err:  errors.New("credential store exploded at /var/lib/secrets"),
			want: "Internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeErrorMessage(tt.err); got != tt.want {
				t.Errorf("SafeErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

// SafeErrorMessage must never leak the denylist pattern that matched,
// only the input kind.
func TestSafeErrorMessage_NoDenylistLeak(t *testing.T) {
	t.Parallel()

	err := &validation.Error{
		Input: "command",
		Violations: []validation.Violation{
			{Rule: validation.RuleDangerousPattern, Detail: "dangerous command pattern: recursive root delete"},
		},
	}

	msg := SafeErrorMessage(err)
	if msg != "Invalid command" {
		t.Errorf("expected fixed message, got %q", msg)
	}
}
