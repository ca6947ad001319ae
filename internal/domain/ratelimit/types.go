// Package ratelimit provides sliding-window rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// Default limit applied when a resource has no explicit configuration.
const (
	DefaultRequests = 100
	DefaultWindow   = 60 * time.Second
)

// Limit defines the rate limiting parameters for one key.
type Limit struct {
	// Requests is the maximum number of requests in the window.
	Requests int

	// Window is the trailing time window the count applies to.
	Window time.Duration
}

// DefaultLimit returns the fallback limit (100 requests per 60s).
func DefaultLimit() Limit {
	return Limit{Requests: DefaultRequests, Window: DefaultWindow}
}

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long the caller should wait before retrying.
	// Only meaningful when Allowed is false; always a whole number of
	// seconds, at least one.
	RetryAfter time.Duration
}

// Error is returned when a caller exceeds its limit. It carries the
// retry hint so dispatchers can surface it without re-checking.
type Error struct {
	// Key is the rate limit key that was exhausted.
	Key string

	// RetryAfter is the wait hint from the failed check.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Key, e.RetryAfterSeconds())
}

// RetryAfterSeconds returns the retry hint in whole seconds.
func (e *Error) RetryAfterSeconds() int {
	return int(e.RetryAfter / time.Second)
}

// FormatKey builds the rate limit key for a (caller, resource) pair.
// The identifier is typically a user ID; anonymous callers share one.
func FormatKey(identifier, resource string) string {
	return identifier + ":" + resource
}
