package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Default structural limits. MaxPathLength follows the Windows MAX_PATH
// convention carried over from the systems this core fronts.
const (
	DefaultMaxCommandLength    = 1000
	DefaultMaxPathLength       = 260
	DefaultMaxIdentifierLength = 255
)

// identifierPattern restricts identifiers (process names, resource names)
// to a conservative charset.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// deniedPattern is one entry of the command denylist. Name is the
// client-safe label reported on match; the regex itself stays internal.
type deniedPattern struct {
	name string
	re   *regexp.Regexp
}

// defaultDeniedPatterns blocks shell constructs that destroy data or
// take down the host. Matching is case-insensitive and positional
// anywhere in the command.
var defaultDeniedPatterns = []deniedPattern{
	{"recursive root delete", regexp.MustCompile(`(?i)rm\s+-rf\s+/`)},
	{"disk format", regexp.MustCompile(`(?i)format\s+c:`)},
	{"recursive force delete", regexp.MustCompile(`(?i)del\s+/f\s+/s\s+/q`)},
	{"shutdown command", regexp.MustCompile(`(?i)shutdown|poweroff|reboot`)},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`)},
	{"raw device write", regexp.MustCompile(`(?i)dd\s+if=/dev/(zero|random|urandom)`)},
	{"filesystem create", regexp.MustCompile(`(?i)mkfs\.`)},
}

// Config adjusts the validator's limits and extends the denylist.
// Zero values fall back to the defaults.
type Config struct {
	MaxCommandLength    int
	MaxPathLength       int
	MaxIdentifierLength int

	// ExtraDeniedPatterns are additional regular expressions appended
	// to the built-in denylist. An invalid pattern is a configuration
	// error and aborts startup.
	ExtraDeniedPatterns []string
}

// Validator checks commands, paths, and identifiers against structural
// rules and the command denylist. It holds only compiled patterns and is
// safe for concurrent use.
type Validator struct {
	maxCommandLength    int
	maxPathLength       int
	maxIdentifierLength int
	denied              []deniedPattern
}

// NewValidator compiles the denylist and returns a ready Validator.
func NewValidator(cfg Config) (*Validator, error) {
	v := &Validator{
		maxCommandLength:    cfg.MaxCommandLength,
		maxPathLength:       cfg.MaxPathLength,
		maxIdentifierLength: cfg.MaxIdentifierLength,
		denied:              defaultDeniedPatterns,
	}
	if v.maxCommandLength <= 0 {
		v.maxCommandLength = DefaultMaxCommandLength
	}
	if v.maxPathLength <= 0 {
		v.maxPathLength = DefaultMaxPathLength
	}
	if v.maxIdentifierLength <= 0 {
		v.maxIdentifierLength = DefaultMaxIdentifierLength
	}

	for i, p := range cfg.ExtraDeniedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("extra denied pattern %d: %w", i, err)
		}
		v.denied = append(v.denied, deniedPattern{
			name: fmt.Sprintf("custom pattern %d", i+1),
			re:   re,
		})
	}
	return v, nil
}

// ValidateCommand checks a shell command against the length limit and
// the full denylist. Every matching pattern is reported, not just the
// first, so callers see the complete set of problems at once.
func (v *Validator) ValidateCommand(command string) Result {
	var violations []Violation

	if len(command) > v.maxCommandLength {
		violations = append(violations, Violation{
			Rule:   RuleMaxLength,
			Detail: fmt.Sprintf("command too long (max %d characters)", v.maxCommandLength),
		})
	}

	for _, p := range v.denied {
		if p.re.MatchString(command) {
			violations = append(violations, Violation{
				Rule:   RuleDangerousPattern,
				Detail: fmt.Sprintf("dangerous command pattern: %s", p.name),
			})
		}
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}

// ValidatePath checks a filesystem path for length, traversal, and NUL
// bytes. The traversal check runs on the raw, unresolved string: callers
// must not canonicalize first or the ".." heuristic is bypassed.
func (v *Validator) ValidatePath(path string) Result {
	var violations []Violation

	if len(path) > v.maxPathLength {
		violations = append(violations, Violation{
			Rule:   RuleMaxLength,
			Detail: fmt.Sprintf("path too long (max %d characters)", v.maxPathLength),
		})
	}
	if strings.Contains(path, "..") {
		violations = append(violations, Violation{
			Rule:   RulePathTraversal,
			Detail: "path traversal detected",
		})
	}
	if strings.ContainsRune(path, 0) {
		violations = append(violations, Violation{
			Rule:   RuleNullByte,
			Detail: "null byte in path",
		})
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}

// ValidateIdentifier checks a process or resource identifier for length
// and charset. Empty identifiers are rejected by the charset rule.
func (v *Validator) ValidateIdentifier(name string) Result {
	var violations []Violation

	if len(name) > v.maxIdentifierLength {
		violations = append(violations, Violation{
			Rule:   RuleMaxLength,
			Detail: fmt.Sprintf("identifier too long (max %d characters)", v.maxIdentifierLength),
		})
	}
	if !identifierPattern.MatchString(name) {
		violations = append(violations, Violation{
			Rule:   RuleCharset,
			Detail: "identifier contains invalid characters",
		})
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}
