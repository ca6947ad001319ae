package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid marks configuration problems. Errors wrapping it are only
// ever produced at startup and are always fatal; nothing after boot
// returns one.
var ErrInvalid = errors.New("invalid configuration")

// sha256HashPattern matches the legacy password hash form.
var sha256HashPattern = regexp.MustCompile(`^sha256:[0-9a-fA-F]{64}$`)

// RegisterCustomValidators registers toolwarden-specific validation
// rules. Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("register duration validator: %w", err)
	}
	if err := v.RegisterValidation("password_hash", validatePasswordHash); err != nil {
		return fmt.Errorf("register password_hash validator: %w", err)
	}
	return nil
}

// validateAuditOutput accepts "stdout", "file://<absolute-dir>", or
// "sqlite://<absolute-path>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "stdout" {
		return true
	}
	for _, scheme := range []string{"file://", "sqlite://"} {
		if strings.HasPrefix(output, scheme) {
			path := strings.TrimPrefix(output, scheme)
			return path != "" && filepath.IsAbs(path)
		}
	}
	return false
}

// validateDuration accepts anything time.ParseDuration does, including
// the bare "0".
func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// validatePasswordHash accepts an Argon2id PHC string or the legacy
// sha256:<64 hex> form. Anything else is treated as plaintext and
// rejected.
func validatePasswordHash(fl validator.FieldLevel) bool {
	hash := fl.Field().String()
	if strings.HasPrefix(hash, "$argon2id$") {
		return true
	}
	return sha256HashPattern.MatchString(hash)
}

// Validate checks the configuration using struct tags and cross-field
// rules. Any failure wraps ErrInvalid.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateUniqueUsernames(); err != nil {
		return err
	}
	if err := c.validateUniqueResourceLimits(); err != nil {
		return err
	}

	return nil
}

// validateUniqueUsernames rejects duplicate inline account names; a
// duplicate would silently shadow the earlier entry.
func (c *Config) validateUniqueUsernames() error {
	seen := make(map[string]struct{}, len(c.Authentication.Users))
	for i, u := range c.Authentication.Users {
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("%w: authentication.users[%d]: duplicate username %q", ErrInvalid, i, u.Username)
		}
		seen[u.Username] = struct{}{}
	}
	return nil
}

// validateUniqueResourceLimits rejects duplicate per-resource override
// entries.
func (c *Config) validateUniqueResourceLimits() error {
	seen := make(map[string]struct{}, len(c.RateLimit.PerResource))
	for i, r := range c.RateLimit.PerResource {
		if _, dup := seen[r.Resource]; dup {
			return fmt.Errorf("%w: rate_limit.per_resource[%d]: duplicate resource %q", ErrInvalid, i, r.Resource)
		}
		seen[r.Resource] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages wrapping ErrInvalid.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout', 'file://<absolute-dir>', or 'sqlite://<absolute-path>'", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration like '30s' or '5m'", field)
	case "password_hash":
		return fmt.Sprintf("%s must be an argon2id hash or 'sha256:<64 hex>' (plaintext is not accepted)", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
