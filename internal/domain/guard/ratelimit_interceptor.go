package guard

import (
	"context"
	"log/slog"

	"github.com/toolwarden/toolwarden/internal/domain/ratelimit"
)

// RateLimitInterceptor bounds how often a (caller, resource) pair may
// proceed. It runs after authentication so the key reflects the
// verified identity; anonymous callers share one bucket.
type RateLimitInterceptor struct {
	limiter      ratelimit.Limiter
	defaultLimit ratelimit.Limit
	overrides    map[string]ratelimit.Limit
	next         Interceptor
	logger       *slog.Logger
}

// NewRateLimitInterceptor creates a RateLimitInterceptor wrapping next.
// Overrides replace the default limit for the named resources; a nil map
// applies the default everywhere.
func NewRateLimitInterceptor(
	limiter ratelimit.Limiter,
	defaultLimit ratelimit.Limit,
	overrides map[string]ratelimit.Limit,
	next Interceptor,
	logger *slog.Logger,
) *RateLimitInterceptor {
	return &RateLimitInterceptor{
		limiter:      limiter,
		defaultLimit: defaultLimit,
		overrides:    overrides,
		next:         next,
		logger:       logger,
	}
}

// Intercept checks the rate limit for the invocation's identity and
// resource. Returns a *ratelimit.Error carrying the retry hint when the
// limit is exhausted. An unavailable limiter allows the call through
// (fail open) with an error log.
func (r *RateLimitInterceptor) Intercept(ctx context.Context, inv *Invocation) (*Invocation, error) {
	key := ratelimit.FormatKey(inv.UserID(), inv.Resource)

	result, err := r.limiter.Allow(ctx, key, r.limitFor(inv.Resource))
	if err != nil {
		r.logger.Error("rate limit check failed",
			"key", key,
			"error", err,
		)
		return r.next.Intercept(ctx, inv)
	}

	if !result.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"retry_after", result.RetryAfter,
		)
		return nil, &ratelimit.Error{Key: key, RetryAfter: result.RetryAfter}
	}

	r.logger.Debug("rate limit check passed",
		"key", key,
		"remaining", result.Remaining,
	)

	return r.next.Intercept(ctx, inv)
}

// limitFor resolves the limit for a resource.
func (r *RateLimitInterceptor) limitFor(resource string) ratelimit.Limit {
	if limit, ok := r.overrides[resource]; ok {
		return limit
	}
	return r.defaultLimit
}

// Compile-time check that RateLimitInterceptor implements Interceptor.
var _ Interceptor = (*RateLimitInterceptor)(nil)
