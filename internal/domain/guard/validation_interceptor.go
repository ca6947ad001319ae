package guard

import (
	"context"
	"log/slog"

	"github.com/toolwarden/toolwarden/internal/domain/validation"
)

// validatedDetailKeys are the detail keys whose string values are
// sanitized and validated, in check order.
var validatedDetailKeys = []string{"command", "path", "process_name"}

// ValidationInterceptor sanitizes and validates the invocation's
// argument strings before rate limiting or policy checks see them. The
// sanitized value replaces the original in Details, so downstream
// stages and the executed operation always observe the cleaned form.
type ValidationInterceptor struct {
	validator *validation.Validator
	next      Interceptor
	logger    *slog.Logger
}

// NewValidationInterceptor creates a ValidationInterceptor wrapping next.
func NewValidationInterceptor(v *validation.Validator, next Interceptor, logger *slog.Logger) *ValidationInterceptor {
	return &ValidationInterceptor{validator: v, next: next, logger: logger}
}

// Intercept validates the command, path, and process_name details.
// Non-string values and other keys pass through untouched. The first
// failing detail stops the chain with a *validation.Error listing every
// violated rule for that value.
func (v *ValidationInterceptor) Intercept(ctx context.Context, inv *Invocation) (*Invocation, error) {
	for _, key := range validatedDetailKeys {
		raw, ok := inv.Details[key].(string)
		if !ok {
			continue
		}

		sanitized := validation.Sanitize(raw)
		result := v.check(key, sanitized)
		if !result.Valid {
			v.logger.Warn("input validation failed",
				"input", key,
				"violations", len(result.Violations),
				"request_id", inv.RequestID,
			)
			return nil, result.Err(key)
		}
		inv.Details[key] = sanitized
	}

	return v.next.Intercept(ctx, inv)
}

// check dispatches one detail value to its validator.
func (v *ValidationInterceptor) check(key, value string) validation.Result {
	switch key {
	case "command":
		return v.validator.ValidateCommand(value)
	case "path":
		return v.validator.ValidatePath(value)
	default:
		return v.validator.ValidateIdentifier(value)
	}
}

// Compile-time check that ValidationInterceptor implements Interceptor.
var _ Interceptor = (*ValidationInterceptor)(nil)
