// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/toolwarden/toolwarden/internal/domain/session"
)

// GrantStore implements session.GrantStore with an in-memory map.
// Thread-safe for concurrent access. Grants carry no expiry, so there
// is no cleanup goroutine; revocation is the only removal path.
type GrantStore struct {
	mu     sync.RWMutex
	grants map[string]*session.Grant
}

// NewGrantStore creates a new in-memory grant store.
func NewGrantStore() *GrantStore {
	return &GrantStore{
		grants: make(map[string]*session.Grant),
	}
}

// Put stores a new grant.
func (s *GrantStore) Put(ctx context.Context, grant *session.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *grant
	s.grants[grant.Token] = &cp
	return nil
}

// Get retrieves a grant by token.
// Returns session.ErrGrantNotFound if it doesn't exist.
func (s *GrantStore) Get(ctx context.Context, token string) (*session.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[token]
	if !ok {
		return nil, session.ErrGrantNotFound
	}
	cp := *grant
	return &cp, nil
}

// Delete removes a grant. Deleting an absent grant is not an error.
func (s *GrantStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants, token)
	return nil
}

// Size returns the number of grants currently stored.
func (s *GrantStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

// Compile-time interface verification.
var _ session.GrantStore = (*GrantStore)(nil)
