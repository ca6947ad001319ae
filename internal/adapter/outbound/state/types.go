// Package state provides file-based persistence for toolwarden's
// security state.
//
// The state.json file stores what must survive restarts but never
// belongs in config: the generated token signing secret and the
// locally managed user accounts. This package provides atomic writes,
// file locking, and backup functionality, and keeps the file at 0600
// since it holds secret material.
package state

import (
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

// SecurityState is the top-level structure persisted in state.json.
type SecurityState struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// SigningSecret is the base64-encoded token signing secret. Only
	// set when the secret was generated rather than configured, so
	// that issued tokens survive restarts.
	SigningSecret string `json:"signing_secret,omitempty"`

	// Users are the locally managed accounts, maintained by the user
	// commands. Password hashes only, never plaintext.
	Users []UserEntry `json:"users"`

	// CreatedAt is when this state file was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this state file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// UserEntry is one locally managed account.
type UserEntry struct {
	// Username is the unique login name.
	Username string `json:"username"`

	// PasswordHash is the stored hash: an Argon2id PHC string
	// ("$argon2id$...") or a legacy "sha256:<64 hex>" digest.
	PasswordHash string `json:"password_hash"`

	// Roles are the assigned roles (e.g. "admin", "user").
	Roles []string `json:"roles"`

	// CreatedAt is when this account was created.
	CreatedAt time.Time `json:"created_at"`
}

// Credential converts the entry to the auth domain type.
func (e UserEntry) Credential() *auth.Credential {
	return &auth.Credential{
		Username:     e.Username,
		PasswordHash: e.PasswordHash,
		Roles:        auth.RolesFromStrings(e.Roles),
		CreatedAt:    e.CreatedAt,
	}
}

// FindUser returns the entry for username, or nil when absent.
func (s *SecurityState) FindUser(username string) *UserEntry {
	for i := range s.Users {
		if s.Users[i].Username == username {
			return &s.Users[i]
		}
	}
	return nil
}

// UpsertUser adds the entry, replacing an existing one with the same
// username.
func (s *SecurityState) UpsertUser(entry UserEntry) {
	for i := range s.Users {
		if s.Users[i].Username == entry.Username {
			s.Users[i] = entry
			return
		}
	}
	s.Users = append(s.Users, entry)
}

// RemoveUser deletes the entry for username. It reports whether an
// entry was removed.
func (s *SecurityState) RemoveUser(username string) bool {
	for i := range s.Users {
		if s.Users[i].Username == username {
			s.Users = append(s.Users[:i], s.Users[i+1:]...)
			return true
		}
	}
	return false
}
