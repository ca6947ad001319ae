// Package audit contains domain types for the append-only audit trail.
package audit

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/toolwarden/toolwarden/pkg/redact"
)

// Result constants for audit entries.
const (
	// ResultSuccess indicates the recorded operation completed.
	ResultSuccess = "success"
	// ResultFailure indicates the recorded operation was denied or failed.
	ResultFailure = "failure"
)

// AnonymousUserID is recorded when an entry has no associated user.
const AnonymousUserID = "anonymous"

// maxDetailRunes caps the length of string detail values. Oversized
// values (command output, file contents) are truncated, not dropped.
const maxDetailRunes = 1000

// DetailResult is the detail key under which an operation's outcome
// payload is recorded.
const DetailResult = "result"

// Entry is a single audit record. Entries are append-only: once
// constructed they are never mutated or deleted.
type Entry struct {
	// ID uniquely identifies the entry across sinks.
	ID string `json:"id"`
	// Timestamp is the UTC time the entry was recorded.
	Timestamp time.Time `json:"timestamp"`
	// UserID identifies the acting user, or AnonymousUserID.
	UserID string `json:"user_id"`
	// Action is the operation verb (read, write, execute).
	Action string `json:"action"`
	// Resource is the operation's resource category.
	Resource string `json:"resource"`
	// Result is ResultSuccess or ResultFailure.
	Result string `json:"result"`
	// IPAddress is the caller's address, when known.
	IPAddress string `json:"ip_address,omitempty"`
	// UserAgent is the caller's client identification, when known.
	UserAgent string `json:"user_agent,omitempty"`
	// Details holds operation parameters, already redacted.
	Details map[string]any `json:"details"`
}

// NewEntry builds an Entry with a fresh ID and UTC timestamp. An empty
// userID becomes AnonymousUserID. Details are deep-copied with sensitive
// values masked and long string values truncated, so no raw sensitive
// value ever reaches a sink. Optional fields (IPAddress, UserAgent) are
// set on the returned value.
func NewEntry(userID, action, resource, result string, details map[string]any) Entry {
	if userID == "" {
		userID = AnonymousUserID
	}
	redacted := redact.Map(details, redact.DefaultKeywords)
	if redacted == nil {
		redacted = map[string]any{}
	}
	truncateDetails(redacted)
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Result:    result,
		Details:   redacted,
	}
}

// ResultOf maps an operation outcome to the Result constant.
func ResultOf(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// truncateDetails caps string values in place. The map is the private
// deep copy produced by redact.Map, so mutation is safe.
func truncateDetails(m map[string]any) {
	for k, v := range m {
		m[k] = truncateValue(v)
	}
}

// truncateValue truncates a single value, recursing into containers.
func truncateValue(v any) any {
	switch t := v.(type) {
	case string:
		return TruncateDetail(t)
	case map[string]any:
		truncateDetails(t)
		return t
	case []any:
		for i, elem := range t {
			t[i] = truncateValue(elem)
		}
		return t
	case []map[string]any:
		for _, elem := range t {
			truncateDetails(elem)
		}
		return t
	default:
		return v
	}
}

// TruncateDetail caps s at the detail length limit, counting runes so a
// multi-byte character is never split.
func TruncateDetail(s string) string {
	if utf8.RuneCountInString(s) <= maxDetailRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxDetailRunes])
}
