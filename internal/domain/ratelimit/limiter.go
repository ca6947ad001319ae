package ratelimit

import "context"

// Limiter is the interface for rate limit checks.
//
// Implementations must use an exact-count sliding window: the trailing
// window moves continuously, so a caller can never exceed the limit by
// bursting across a window boundary the way fixed buckets permit. The
// cost is O(limit) memory per key.
//
// The interface is storage-agnostic; the in-memory implementation lives
// under adapter/outbound/memory. A distributed deployment would need a
// shared backend, which is out of scope for this single-process core.
type Limiter interface {
	// Allow performs one atomic check-and-count for key. Two concurrent
	// calls with the same key observe a serialized sequence: no double
	// counting, no lost updates.
	//
	// The key should be built with FormatKey. When the check is denied,
	// Result.RetryAfter holds the wait hint; the timestamp list is not
	// modified by a denied check.
	Allow(ctx context.Context, key string, limit Limit) (Result, error)
}
