// Package validation sanitizes and validates raw argument strings
// (commands, filesystem paths, identifiers) before they reach any
// privileged operation. Validation never mutates its input: callers get
// either a clean pass or the complete list of violated rules.
package validation

import (
	"fmt"
	"strings"
)

// Rule identifiers reported in violations. These are stable names, safe
// to show to callers; the underlying regex patterns are not exposed.
const (
	RuleMaxLength        = "max_length"
	RuleDangerousPattern = "dangerous_pattern"
	RulePathTraversal    = "path_traversal"
	RuleNullByte         = "null_byte"
	RuleCharset          = "charset"
)

// Violation describes a single failed validation rule.
type Violation struct {
	// Rule is the stable identifier of the violated rule.
	Rule string `json:"rule"`

	// Detail is a client-safe description of what was rejected.
	Detail string `json:"detail"`
}

// Result is the outcome of validating one input string.
// Valid is false iff Violations is non-empty.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Err converts a failed Result into an *Error, or returns nil when the
// result is valid.
func (r Result) Err(input string) error {
	if r.Valid {
		return nil
	}
	return &Error{Input: input, Violations: r.Violations}
}

// Error is a validation failure carrying every violated rule.
// The message is client-safe: it names the rules, not the internals.
type Error struct {
	// Input names what was validated ("command", "path", "identifier").
	Input string

	// Violations lists every rule the value failed, in check order.
	Violations []Violation
}

// Error implements the error interface.
func (e *Error) Error() string {
	details := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		details[i] = v.Detail
	}
	return fmt.Sprintf("invalid %s: %s", e.Input, strings.Join(details, "; "))
}
