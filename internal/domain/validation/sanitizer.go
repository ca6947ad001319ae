package validation

import "strings"

// Sanitize removes NUL bytes and C0/C1 control characters (keeping
// newline and tab), then trims surrounding whitespace. It is applied to
// every raw string before validation; validators assume sanitized input.
//
// DEL (0x7F) is stripped along with the C0 range. Printable characters,
// including multi-byte runes, pass through unchanged.
func Sanitize(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20: // C0 controls, includes NUL
			return -1
		case r == 0x7F: // DEL
			return -1
		case r >= 0x80 && r <= 0x9F: // C1 controls
			return -1
		default:
			return r
		}
	}, s)
	return strings.TrimSpace(cleaned)
}
