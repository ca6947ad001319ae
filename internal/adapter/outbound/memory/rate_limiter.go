// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/ratelimit"
)

// SlidingWindowLimiter implements ratelimit.Limiter with an exact-count
// sliding window per key. Thread-safe; check-and-append runs as one
// critical section. Includes background cleanup of idle keys to bound
// memory growth (lazy pruning alone keeps each key's list bounded, but
// abandoned keys would linger forever without the sweep).
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxIdle         time.Duration

	now func() time.Time // test hook
}

// NewSlidingWindowLimiter creates a limiter with default cleanup
// settings (sweep every 5 minutes, drop keys idle for 1 hour).
func NewSlidingWindowLimiter() *SlidingWindowLimiter {
	return NewSlidingWindowLimiterWithConfig(5*time.Minute, 1*time.Hour)
}

// NewSlidingWindowLimiterWithConfig creates a limiter with custom
// cleanup settings.
func NewSlidingWindowLimiterWithConfig(cleanupInterval, maxIdle time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows:         make(map[string][]time.Time),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		now:             time.Now,
	}
}

// Allow checks whether another request fits inside the trailing window
// for key. Entries older than the window are dropped lazily on each
// check. A denied check leaves the window untouched and returns a
// retry-after hint of floor(oldest + window - now) + 1 seconds.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string, limit ratelimit.Limit) (ratelimit.Result, error) {
	if limit.Requests <= 0 {
		limit.Requests = ratelimit.DefaultRequests
	}
	if limit.Window <= 0 {
		limit.Window = ratelimit.DefaultWindow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-limit.Window)

	times := l.windows[key]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit.Requests {
		l.windows[key] = kept
		oldest := kept[0]
		wait := oldest.Add(limit.Window).Sub(now)
		if wait < 0 {
			wait = 0
		}
		// Truncate to whole seconds, then add one so the caller always
		// waits past the oldest entry's expiry.
		retryAfter := wait.Truncate(time.Second) + time.Second
		return ratelimit.Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retryAfter,
		}, nil
	}

	kept = append(kept, now)
	l.windows[key] = kept

	return ratelimit.Result{
		Allowed:   true,
		Remaining: limit.Requests - len(kept),
	}, nil
}

// StartCleanup starts the background sweep goroutine. It removes keys
// whose newest entry is older than maxIdle, and stops when ctx is
// cancelled or Stop is called.
func (l *SlidingWindowLimiter) StartCleanup(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()
}

// cleanup drops keys that have been idle longer than maxIdle.
func (l *SlidingWindowLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.maxIdle)
	cleaned := 0

	for key, times := range l.windows {
		if len(times) == 0 || times[len(times)-1].Before(cutoff) {
			delete(l.windows, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(l.windows))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (l *SlidingWindowLimiter) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

// Size returns the current number of tracked keys.
func (l *SlidingWindowLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*SlidingWindowLimiter)(nil)
