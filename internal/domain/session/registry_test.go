package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

// mockSessionStore is a simple in-memory mock for testing.
type mockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{
		sessions: make(map[string]*Session),
	}
}

func (m *mockSessionStore) Create(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *mockSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *mockSessionStore) Update(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.ID]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[sess.ID] = sess
	return nil
}

func (m *mockSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// mockGrantStore is a simple in-memory mock for testing.
type mockGrantStore struct {
	mu     sync.RWMutex
	grants map[string]*Grant
}

func newMockGrantStore() *mockGrantStore {
	return &mockGrantStore{grants: make(map[string]*Grant)}
}

func (m *mockGrantStore) Put(ctx context.Context, grant *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grant.Token] = grant
	return nil
}

func (m *mockGrantStore) Get(ctx context.Context, token string) (*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grant, ok := m.grants[token]
	if !ok {
		return nil, ErrGrantNotFound
	}
	return grant, nil
}

func (m *mockGrantStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, token)
	return nil
}

var (
	_ SessionStore = (*mockSessionStore)(nil)
	_ GrantStore   = (*mockGrantStore)(nil)
)

func newTestRegistry(cfg Config) (*Registry, *mockSessionStore, *mockGrantStore) {
	sessions := newMockSessionStore()
	grants := newMockGrantStore()
	return NewRegistry(sessions, grants, cfg), sessions, grants
}

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name string
	}{
		{name: "generates unique IDs"},
		{name: "ID is 64 hex characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch tt.name {
			case "generates unique IDs":
				ids := make(map[string]bool)
				for i := 0; i < 100; i++ {
					id, err := GenerateID()
					if err != nil {
						t.Fatalf("GenerateID() error = %v", err)
					}
					if ids[id] {
						t.Errorf("GenerateID() generated duplicate ID: %s", id)
					}
					ids[id] = true
				}

			case "ID is 64 hex characters":
				id, err := GenerateID()
				if err != nil {
					t.Fatalf("GenerateID() error = %v", err)
				}
				if len(id) != 64 {
					t.Errorf("GenerateID() len = %d, want 64", len(id))
				}
				// Verify it's valid hex
				for _, c := range id {
					if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
						t.Errorf("GenerateID() contains non-hex character: %c", c)
					}
				}
			}
		})
	}
}

func TestRegistry_Create(t *testing.T) {
	registry, _, _ := newTestRegistry(Config{TTL: 30 * time.Minute})
	ctx := context.Background()

	user := auth.NewUser("user-123", auth.RoleUser)

	sess, err := registry.Create(ctx, user)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if sess.ID == "" {
		t.Error("Create() session.ID is empty")
	}
	if len(sess.ID) != 64 {
		t.Errorf("Create() session.ID len = %d, want 64", len(sess.ID))
	}
	if sess.User.ID != user.ID {
		t.Errorf("Create() session.User.ID = %q, want %q", sess.User.ID, user.ID)
	}
	if sess.CreatedAt.IsZero() {
		t.Error("Create() session.CreatedAt is zero")
	}
	if sess.LastAccess.IsZero() {
		t.Error("Create() session.LastAccess is zero")
	}

	// Verify expiration is ~30 minutes from now
	expectedExpiry := time.Now().Add(30 * time.Minute)
	if sess.ExpiresAt.Before(expectedExpiry.Add(-time.Second)) ||
		sess.ExpiresAt.After(expectedExpiry.Add(time.Second)) {
		t.Errorf("Create() session.ExpiresAt = %v, want ~%v", sess.ExpiresAt, expectedExpiry)
	}
}

func TestRegistry_CreateWithoutTTL(t *testing.T) {
	registry, _, _ := newTestRegistry(Config{})
	ctx := context.Background()

	sess, err := registry.Create(ctx, auth.NewUser("user-1", auth.RoleUser))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// No TTL configured: sessions never expire
	if !sess.ExpiresAt.IsZero() {
		t.Errorf("Create() session.ExpiresAt = %v, want zero (no expiry)", sess.ExpiresAt)
	}
	if sess.IsExpired() {
		t.Error("IsExpired() = true for a session without TTL")
	}
}

func TestRegistry_Get(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*mockSessionStore, *Registry) string
		wantErr error
	}{
		{
			name: "returns session if not expired",
			setup: func(store *mockSessionStore, reg *Registry) string {
				sess, _ := reg.Create(context.Background(), auth.NewUser("user-1", auth.RoleUser))
				return sess.ID
			},
			wantErr: nil,
		},
		{
			name: "returns error if session does not exist",
			setup: func(store *mockSessionStore, reg *Registry) string {
				return "nonexistent-session-id"
			},
			wantErr: ErrSessionNotFound,
		},
		{
			name: "expired session treated as absent and purged",
			setup: func(store *mockSessionStore, reg *Registry) string {
				sess := &Session{
					ID:         "expired-session",
					User:       auth.NewUser("user-1", auth.RoleUser),
					CreatedAt:  time.Now().Add(-2 * time.Hour),
					ExpiresAt:  time.Now().Add(-1 * time.Hour),
					LastAccess: time.Now().Add(-2 * time.Hour),
				}
				_ = store.Create(context.Background(), sess)
				return sess.ID
			},
			wantErr: ErrSessionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, store, _ := newTestRegistry(Config{TTL: 30 * time.Minute})
			ctx := context.Background()

			sessionID := tt.setup(store, registry)
			sess, err := registry.Get(ctx, sessionID)

			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Get() unexpected error = %v", err)
			}
			if sess == nil {
				t.Error("Get() returned nil session, want valid session")
			}
		})
	}
}

func TestRegistry_GetPurgesExpired(t *testing.T) {
	registry, store, _ := newTestRegistry(Config{TTL: 30 * time.Minute})
	ctx := context.Background()

	expired := &Session{
		ID:        "lazy-purge",
		User:      auth.NewUser("user-1", auth.RoleUser),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-1 * time.Hour),
	}
	_ = store.Create(ctx, expired)

	if _, err := registry.Get(ctx, "lazy-purge"); err != ErrSessionNotFound {
		t.Fatalf("Get() error = %v, want ErrSessionNotFound", err)
	}

	// The lookup must have removed the stale entry from the store
	store.mu.RLock()
	_, still := store.sessions["lazy-purge"]
	store.mu.RUnlock()
	if still {
		t.Error("expired session still present after lookup, want lazy purge")
	}
}

func TestRegistry_Refresh(t *testing.T) {
	registry, _, _ := newTestRegistry(Config{TTL: 30 * time.Minute})
	ctx := context.Background()

	sess, _ := registry.Create(ctx, auth.NewUser("user-1", auth.RoleUser))
	originalExpiry := sess.ExpiresAt

	// Wait a tiny bit to ensure timestamps differ
	time.Sleep(10 * time.Millisecond)

	if err := registry.Refresh(ctx, sess.ID); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	refreshed, err := registry.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() after Refresh() error = %v", err)
	}

	if !refreshed.ExpiresAt.After(originalExpiry) {
		t.Errorf("Refresh() ExpiresAt = %v, want after %v", refreshed.ExpiresAt, originalExpiry)
	}
	if !refreshed.LastAccess.After(sess.LastAccess) {
		t.Errorf("Refresh() LastAccess = %v, want after %v", refreshed.LastAccess, sess.LastAccess)
	}
}

func TestRegistry_DeleteIsIdempotent(t *testing.T) {
	registry, _, _ := newTestRegistry(Config{TTL: 30 * time.Minute})
	ctx := context.Background()

	sess, _ := registry.Create(ctx, auth.NewUser("user-1", auth.RoleUser))

	if err := registry.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := registry.Get(ctx, sess.ID); err != ErrSessionNotFound {
		t.Errorf("Get() after Delete() error = %v, want %v", err, ErrSessionNotFound)
	}

	// Deleting twice is not an error
	if err := registry.Delete(ctx, sess.ID); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestRegistry_Grants(t *testing.T) {
	registry, _, _ := newTestRegistry(Config{})
	ctx := context.Background()

	token, err := registry.IssueGrant(ctx, "user-42")
	if err != nil {
		t.Fatalf("IssueGrant() error = %v", err)
	}
	if len(token) != 64 {
		t.Errorf("IssueGrant() token len = %d, want 64", len(token))
	}

	userID, err := registry.ValidateGrant(ctx, token)
	if err != nil {
		t.Fatalf("ValidateGrant() error = %v", err)
	}
	if userID != "user-42" {
		t.Errorf("ValidateGrant() = %q, want %q", userID, "user-42")
	}

	// Revocation takes effect immediately
	if err := registry.RevokeGrant(ctx, token); err != nil {
		t.Fatalf("RevokeGrant() error = %v", err)
	}
	if _, err := registry.ValidateGrant(ctx, token); err != ErrGrantNotFound {
		t.Errorf("ValidateGrant() after revoke error = %v, want %v", err, ErrGrantNotFound)
	}

	// Revoking twice is not an error
	if err := registry.RevokeGrant(ctx, token); err != nil {
		t.Errorf("second RevokeGrant() error = %v, want nil", err)
	}
}

func TestRegistry_GrantsIndependentFromSessions(t *testing.T) {
	registry, _, _ := newTestRegistry(Config{TTL: 30 * time.Minute})
	ctx := context.Background()

	sess, _ := registry.Create(ctx, auth.NewUser("user-1", auth.RoleUser))
	token, _ := registry.IssueGrant(ctx, "user-1")

	// Deleting the session leaves the grant valid
	if err := registry.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := registry.ValidateGrant(ctx, token); err != nil {
		t.Errorf("ValidateGrant() after session delete error = %v, want nil", err)
	}
}

func TestSession_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "not expired when ExpiresAt is in future",
			expiresAt: time.Now().Add(1 * time.Hour),
			want:      false,
		},
		{
			name:      "expired when ExpiresAt is in past",
			expiresAt: time.Now().Add(-1 * time.Hour),
			want:      true,
		},
		{
			name:      "zero ExpiresAt never expires",
			expiresAt: time.Time{},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &Session{
				ExpiresAt: tt.expiresAt,
			}
			if got := sess.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_Refresh(t *testing.T) {
	sess := &Session{
		ExpiresAt:  time.Now().Add(10 * time.Minute),
		LastAccess: time.Now().Add(-5 * time.Minute),
	}

	ttl := 30 * time.Minute
	beforeRefresh := time.Now()
	sess.Refresh(ttl)

	// LastAccess should be updated to now
	if sess.LastAccess.Before(beforeRefresh.Add(-time.Second)) {
		t.Errorf("Refresh() LastAccess = %v, want >= %v", sess.LastAccess, beforeRefresh)
	}

	// ExpiresAt should be ~30 minutes from now
	expectedExpiry := time.Now().Add(ttl)
	if sess.ExpiresAt.Before(expectedExpiry.Add(-time.Second)) ||
		sess.ExpiresAt.After(expectedExpiry.Add(time.Second)) {
		t.Errorf("Refresh() ExpiresAt = %v, want ~%v", sess.ExpiresAt, expectedExpiry)
	}

	// Without a TTL, Refresh must not introduce an expiry
	eternal := &Session{}
	eternal.Refresh(0)
	if !eternal.ExpiresAt.IsZero() {
		t.Errorf("Refresh(0) ExpiresAt = %v, want zero", eternal.ExpiresAt)
	}
}
