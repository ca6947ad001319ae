package session

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrGrantNotFound is returned when an opaque grant doesn't exist or was revoked.
var ErrGrantNotFound = errors.New("grant not found")

// SessionStore provides session persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: in-memory.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID.
	// Returns ErrSessionNotFound if session doesn't exist or is expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Update saves changes to an existing session.
	Update(ctx context.Context, session *Session) error

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, id string) error
}

// GrantStore provides opaque grant persistence.
type GrantStore interface {
	// Put stores a new grant.
	Put(ctx context.Context, grant *Grant) error

	// Get retrieves a grant by token.
	// Returns ErrGrantNotFound if it doesn't exist.
	Get(ctx context.Context, token string) (*Grant, error)

	// Delete removes a grant. Deleting an absent grant is not an error.
	Delete(ctx context.Context, token string) error
}
