// Package redact masks sensitive values in nested key/value structures
// before they are logged or persisted. Masking is irreversible: a matched
// value is replaced by a fixed placeholder, never transformed.
package redact

import "strings"

// Mask is the placeholder written in place of a sensitive value.
const Mask = "***MASKED***"

// DefaultKeywords lists substrings that mark a key as sensitive.
// Comparison is case-insensitive and matches anywhere in the key, so
// "user_password" and "PasswordHash" both match "password".
var DefaultKeywords = []string{
	"password", "token", "api_key", "secret", "credential",
}

// SensitiveKey reports whether key matches any of the keywords.
func SensitiveKey(key string, keywords []string) bool {
	lower := strings.ToLower(key)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Map returns a deep copy of m with every sensitive value replaced by
// Mask. Redaction recurses into nested maps and into maps found inside
// slices; scalars under non-sensitive keys pass through unchanged. The
// input map is never mutated.
func Map(m map[string]any, keywords []string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if SensitiveKey(k, keywords) {
			out[k] = Mask
			continue
		}
		out[k] = value(v, keywords)
	}
	return out
}

// value redacts a single value, recursing into container types.
func value(v any, keywords []string) any {
	switch t := v.(type) {
	case map[string]any:
		return Map(t, keywords)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = value(elem, keywords)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, elem := range t {
			out[i] = Map(elem, keywords)
		}
		return out
	default:
		return v
	}
}
