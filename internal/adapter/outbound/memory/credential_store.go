// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

// CredentialStore implements auth.CredentialStore with an in-memory map.
// Thread-safe for concurrent access. Contents live only as long as the
// process; the state file store is the persistent counterpart.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*auth.Credential
}

// NewCredentialStore creates a new in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds: make(map[string]*auth.Credential),
	}
}

// GetCredential retrieves a credential by username.
// Returns auth.ErrCredentialNotFound if it doesn't exist.
func (s *CredentialStore) GetCredential(ctx context.Context, username string) (*auth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[username]
	if !ok {
		return nil, auth.ErrCredentialNotFound
	}
	return copyCredential(cred), nil
}

// ListCredentials returns all stored credentials in no particular order.
func (s *CredentialStore) ListCredentials(ctx context.Context) ([]*auth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*auth.Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		result = append(result, copyCredential(cred))
	}
	return result, nil
}

// PutCredential creates or replaces a credential keyed by username.
func (s *CredentialStore) PutCredential(ctx context.Context, cred *auth.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds[cred.Username] = copyCredential(cred)
	return nil
}

// DeleteCredential removes a credential by username.
// Returns auth.ErrCredentialNotFound if it doesn't exist.
func (s *CredentialStore) DeleteCredential(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[username]; !ok {
		return auth.ErrCredentialNotFound
	}
	delete(s.creds, username)
	return nil
}

// Size returns the number of credentials currently stored.
func (s *CredentialStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}

// copyCredential returns a copy so callers cannot mutate stored state
// through the returned pointer.
func copyCredential(cred *auth.Credential) *auth.Credential {
	cp := *cred
	cp.Roles = make([]auth.Role, len(cred.Roles))
	copy(cp.Roles, cred.Roles)
	return &cp
}

// Compile-time interface verification.
var _ auth.CredentialStore = (*CredentialStore)(nil)
