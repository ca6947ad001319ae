package auth

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for credential store operations.
var (
	// ErrCredentialNotFound is returned when no credential exists for a username.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCredentialExists is returned when creating a credential that already exists.
	ErrCredentialExists = errors.New("credential already exists")
)

// Credential is a stored local account. Only the hash of the password
// is ever held; plaintext never reaches a store.
type Credential struct {
	// Username is the unique login name.
	Username string
	// PasswordHash is the Argon2id PHC string or legacy SHA-256 hex.
	PasswordHash string
	// Roles are granted to the identity on successful login.
	Roles []Role
	// CreatedAt is when the credential was created (UTC).
	CreatedAt time.Time
}

// CredentialStore provides credential lookup for basic authentication.
// The interface is defined in the domain to avoid circular imports.
// Implementations: in-memory (config-seeded), persistent state file.
type CredentialStore interface {
	// GetCredential retrieves a credential by username.
	// Returns ErrCredentialNotFound if it doesn't exist.
	GetCredential(ctx context.Context, username string) (*Credential, error)

	// ListCredentials returns all stored credentials.
	ListCredentials(ctx context.Context) ([]*Credential, error)

	// PutCredential creates or replaces a credential.
	PutCredential(ctx context.Context, cred *Credential) error

	// DeleteCredential removes a credential by username.
	// Returns ErrCredentialNotFound if it doesn't exist.
	DeleteCredential(ctx context.Context, username string) error
}
