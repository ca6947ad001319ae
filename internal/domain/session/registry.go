package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

// Config holds session registry configuration.
type Config struct {
	// TTL is the session expiration duration. Zero disables expiry
	// entirely: sessions live until deleted.
	TTL time.Duration
}

// Registry manages the session table and the opaque grant table. The
// two are independent: sessions carry a full identity and may expire,
// grants map a token to a user ID and live until revoked.
type Registry struct {
	sessions SessionStore
	grants   GrantStore
	ttl      time.Duration
}

// NewRegistry creates a registry over the given stores.
func NewRegistry(sessions SessionStore, grants GrantStore, cfg Config) *Registry {
	return &Registry{
		sessions: sessions,
		grants:   grants,
		ttl:      cfg.TTL,
	}
}

// TTL returns the configured session lifetime. Zero means no expiry.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Create generates a fresh session for a user.
func (r *Registry) Create(ctx context.Context, user *auth.User) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:         id,
		User:       user,
		CreatedAt:  now,
		LastAccess: now,
	}
	if r.ttl > 0 {
		sess.ExpiresAt = now.Add(r.ttl)
	}

	if err := r.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// Get retrieves a session by ID. An entry past its TTL is treated as
// absent and lazily purged.
// Returns ErrSessionNotFound if the session doesn't exist.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := r.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Double-check expiration (store might not enforce it)
	if sess.IsExpired() {
		_ = r.sessions.Delete(ctx, id)
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Refresh extends session expiration and updates last access time.
func (r *Registry) Refresh(ctx context.Context, id string) error {
	sess, err := r.sessions.Get(ctx, id)
	if err != nil {
		return err
	}

	if sess.IsExpired() {
		_ = r.sessions.Delete(ctx, id)
		return ErrSessionNotFound
	}

	sess.Refresh(r.ttl)

	if err := r.sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	return nil
}

// Delete terminates a session. Idempotent: deleting twice is not an error.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.sessions.Delete(ctx, id)
}

// IssueGrant creates a revocable opaque token for a user ID.
func (r *Registry) IssueGrant(ctx context.Context, userID string) (string, error) {
	token, err := GenerateID()
	if err != nil {
		return "", err
	}

	grant := &Grant{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.grants.Put(ctx, grant); err != nil {
		return "", fmt.Errorf("failed to issue grant: %w", err)
	}

	return token, nil
}

// ValidateGrant resolves an opaque token to its user ID.
// Returns ErrGrantNotFound for unknown or revoked tokens.
func (r *Registry) ValidateGrant(ctx context.Context, token string) (string, error) {
	grant, err := r.grants.Get(ctx, token)
	if err != nil {
		return "", err
	}
	return grant.UserID, nil
}

// RevokeGrant invalidates an opaque token immediately. Idempotent.
func (r *Registry) RevokeGrant(ctx context.Context, token string) error {
	return r.grants.Delete(ctx, token)
}

// GenerateID creates a cryptographically random identifier.
// Uses crypto/rand for unpredictability.
// Returns 64 hex characters (32 bytes).
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}
