// Package session tracks authenticated callers across invocations.
package session

import (
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

// Session maps a random identifier to an authenticated user. A session
// with a zero ExpiresAt never expires.
type Session struct {
	// ID is a cryptographically random identifier, 32 bytes hex-encoded.
	ID string
	// User is the identity this session belongs to.
	User *auth.User
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the session will expire (UTC). Zero means never.
	ExpiresAt time.Time
	// LastAccess is the last time the session was used (UTC).
	LastAccess time.Time
}

// IsExpired checks whether the session has passed its expiry. Sessions
// without a TTL never expire.
func (s *Session) IsExpired() bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(s.ExpiresAt)
}

// Refresh updates LastAccess and, when a TTL is in effect, extends
// ExpiresAt by the given duration.
func (s *Session) Refresh(ttl time.Duration) {
	now := time.Now().UTC()
	s.LastAccess = now
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl)
	}
}

// Grant is a revocable opaque credential mapping a token to a user ID.
// Unlike signed tokens, grants are server-side state: revoking one
// takes effect immediately.
type Grant struct {
	// Token is a cryptographically random identifier, 32 bytes hex-encoded.
	Token string
	// UserID is the user this grant was issued to.
	UserID string
	// CreatedAt is when the grant was issued (UTC).
	CreatedAt time.Time
}
