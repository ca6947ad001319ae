// Package config provides the configuration schema for toolwarden.
//
// Configuration is file-based (toolwarden.yaml) with environment
// variable overrides under the TOOLWARDEN_ prefix. The schema covers
// the security core only: authentication, sessions, rate limiting,
// authorization rules, input validation, and audit output. The
// tool-invocation transport in front of this core is configured by its
// host, not here.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for toolwarden.
type Config struct {
	// Server configures process-wide behavior (logging).
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Security is the master switch. Disabled means every check passes
	// and callers get the anonymous identity.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// Authentication selects how callers prove their identity.
	Authentication AuthenticationConfig `yaml:"authentication" mapstructure:"authentication"`

	// Session configures the session registry.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// RateLimit configures the sliding-window rate limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Authorization holds the rule set and path access lists.
	Authorization AuthorizationConfig `yaml:"authorization" mapstructure:"authorization"`

	// Validation adjusts input validator limits and the denylist.
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`

	// Audit configures where and how audit entries are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Telemetry enables the optional OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Ops configures the optional localhost observability listener.
	Ops OpsConfig `yaml:"ops" mapstructure:"ops"`

	// State configures the persistent security state file.
	State StateConfig `yaml:"state" mapstructure:"state"`
}

// ServerConfig configures process-wide behavior.
type ServerConfig struct {
	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// SecurityConfig is the master enable switch.
type SecurityConfig struct {
	// Enabled turns the whole security core on or off. When false every
	// caller is the fixed anonymous identity and every check passes.
	// Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// AuthenticationConfig selects and parameterizes the authentication mode.
type AuthenticationConfig struct {
	// Type is the authentication mode.
	// Valid values: "none", "basic", "token". Defaults to "none".
	Type string `yaml:"type" mapstructure:"type" validate:"omitempty,oneof=none basic token"`

	// TokenExpiry is the signed-token lifetime in seconds.
	// Defaults to 3600 (one hour).
	TokenExpiry int `yaml:"token_expiry" mapstructure:"token_expiry" validate:"omitempty,min=1"`

	// SigningSecret is the token-signing secret. When empty, the secret
	// from the state file is used, or a fresh random secret is generated
	// (invalidating tokens across restarts). At least 16 bytes when set.
	SigningSecret string `yaml:"signing_secret" mapstructure:"signing_secret" validate:"omitempty,min=16"`

	// StoreTimeout bounds credential store lookups (e.g. "5s").
	// Defaults to "5s".
	StoreTimeout string `yaml:"store_timeout" mapstructure:"store_timeout" validate:"omitempty,duration"`

	// Users declares local accounts inline. Hashes only; the state file
	// is the writable account store.
	Users []UserConfig `yaml:"users" mapstructure:"users" validate:"omitempty,dive"`
}

// UserConfig declares one inline local account.
type UserConfig struct {
	// Username is the unique login name.
	Username string `yaml:"username" mapstructure:"username" validate:"required"`

	// PasswordHash is the stored hash: an Argon2id PHC string
	// ("$argon2id$...") or a legacy "sha256:<64 hex>" digest.
	// Plaintext passwords are never accepted here.
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash" validate:"required,password_hash"`

	// Roles granted on successful login.
	Roles []string `yaml:"roles" mapstructure:"roles" validate:"required,min=1,dive,required"`
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	// TTL is the session lifetime (e.g. "30m"). "0" (the default) means
	// sessions never expire.
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`

	// CleanupInterval is how often the expired-session sweep runs.
	// Only relevant with a nonzero TTL. Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`
}

// RateLimitConfig configures the sliding-window rate limiter.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Limit is the maximum requests per window for any key without a
	// per-resource override. Defaults to 100.
	Limit int `yaml:"limit" mapstructure:"limit" validate:"omitempty,min=1"`

	// WindowSeconds is the trailing window length in seconds.
	// Defaults to 60.
	WindowSeconds int `yaml:"window_seconds" mapstructure:"window_seconds" validate:"omitempty,min=1"`

	// PerResource overrides the global limit for named resources.
	PerResource []ResourceLimitConfig `yaml:"per_resource" mapstructure:"per_resource" validate:"omitempty,dive"`

	// CleanupInterval is how often idle keys are swept (e.g. "5m").
	// Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxIdle is how long a key may sit unused before removal (e.g. "1h").
	// Defaults to "1h".
	MaxIdle string `yaml:"max_idle" mapstructure:"max_idle" validate:"omitempty,duration"`
}

// ResourceLimitConfig overrides the rate limit for one resource.
type ResourceLimitConfig struct {
	// Resource names the resource category this limit applies to.
	Resource string `yaml:"resource" mapstructure:"resource" validate:"required"`

	// Limit is the maximum requests per window.
	Limit int `yaml:"limit" mapstructure:"limit" validate:"required,min=1"`

	// WindowSeconds is the window length in seconds. Defaults to the
	// global window when zero.
	WindowSeconds int `yaml:"window_seconds" mapstructure:"window_seconds" validate:"omitempty,min=1"`
}

// AuthorizationConfig holds the rule set and the path access lists.
type AuthorizationConfig struct {
	// Rules are inline authorization rules, evaluated in declaration
	// order ahead of the rules file. First match wins.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`

	// RulesFile is an optional standalone YAML rules file. Its rules are
	// appended after the inline rules.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`

	// CacheSize bounds the decision cache. Defaults to 1024.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`

	// BlockedPaths are path prefixes that are always denied by
	// CheckPathAccess, regardless of rules.
	BlockedPaths []string `yaml:"blocked_paths" mapstructure:"blocked_paths"`

	// AllowedPaths, when non-empty, restricts CheckPathAccess to paths
	// under one of these prefixes.
	AllowedPaths []string `yaml:"allowed_paths" mapstructure:"allowed_paths"`
}

// RuleConfig defines one inline authorization rule.
type RuleConfig struct {
	// Name is an optional identifier reported in decisions.
	Name string `yaml:"name" mapstructure:"name"`

	// Resource the rule applies to.
	Resource string `yaml:"resource" mapstructure:"resource" validate:"required"`

	// Actions the rule covers.
	Actions []string `yaml:"actions" mapstructure:"actions" validate:"required,min=1"`

	// Allow is the verdict when the rule matches.
	Allow bool `yaml:"allow" mapstructure:"allow"`

	// Conditions that must all hold for the rule to match. Shape
	// requirements per type are checked when the rule set loads.
	Conditions []ConditionConfig `yaml:"conditions" mapstructure:"conditions" validate:"omitempty,dive"`
}

// ConditionConfig defines one rule condition.
type ConditionConfig struct {
	// Type selects the predicate.
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=process_whitelist path_whitelist flag_equality expr"`

	// Values holds whitelist entries for the whitelist types.
	Values []string `yaml:"values" mapstructure:"values"`

	// Flag is the details key inspected by flag_equality.
	Flag string `yaml:"flag" mapstructure:"flag"`

	// Equals is the expected value for flag_equality.
	Equals any `yaml:"equals" mapstructure:"equals"`

	// Expr is the CEL source for expr conditions.
	Expr string `yaml:"expr" mapstructure:"expr"`
}

// ValidationConfig adjusts the input validator.
type ValidationConfig struct {
	// MaxCommandLength caps command strings. Defaults to 1000.
	MaxCommandLength int `yaml:"max_command_length" mapstructure:"max_command_length" validate:"omitempty,min=1"`

	// MaxPathLength caps path strings. Defaults to 260.
	MaxPathLength int `yaml:"max_path_length" mapstructure:"max_path_length" validate:"omitempty,min=1"`

	// MaxIdentifierLength caps identifier strings. Defaults to 255.
	MaxIdentifierLength int `yaml:"max_identifier_length" mapstructure:"max_identifier_length" validate:"omitempty,min=1"`

	// ExtraDeniedPatterns are additional case-sensitive regular
	// expressions appended to the built-in command denylist. An invalid
	// pattern aborts startup.
	ExtraDeniedPatterns []string `yaml:"extra_denied_patterns" mapstructure:"extra_denied_patterns"`
}

// AuditConfig configures the audit pipeline and its sink.
type AuditConfig struct {
	// Enabled turns audit recording on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Output selects the sink: "stdout", "file://<absolute-dir>", or
	// "sqlite://<absolute-path>". Defaults to "stdout".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// LogAllOperations records successes as well as failures. When
	// false only failures are recorded. Defaults to true.
	LogAllOperations bool `yaml:"log_all_operations" mapstructure:"log_all_operations"`

	// RetentionDays is how long rotated audit files are kept.
	// Only used with the file sink. Defaults to 30.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB is the per-file size cap before rotation.
	// Only used with the file sink. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`

	// ChannelSize is the buffer size for the audit channel.
	// Defaults to 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of entries batched per write.
	// Defaults to 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often pending entries are flushed (e.g. "1s").
	// Defaults to "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// SendTimeout is how long a caller blocks when the channel is full
	// before the entry is dropped (e.g. "100ms"). "0" drops immediately.
	// Defaults to "100ms".
	SendTimeout string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty,duration"`

	// WarningThreshold is the channel depth percentage (0-100) at which
	// a rate-limited warning is logged. 0 disables. Defaults to 80.
	WarningThreshold int `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`

	// BufferSize is the in-memory ring of recent entries kept for the
	// ops surface. Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// TelemetryConfig enables the OpenTelemetry exporters.
type TelemetryConfig struct {
	// TracesEnabled turns on the stdout trace exporter.
	TracesEnabled bool `yaml:"traces_enabled" mapstructure:"traces_enabled"`

	// MetricsEnabled turns on the stdout metric exporter.
	MetricsEnabled bool `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
}

// OpsConfig configures the observability listener.
type OpsConfig struct {
	// Enabled turns the listener on. Defaults to false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Addr is the address to listen on. Defaults to "127.0.0.1:9090";
	// exposing /healthz and /metrics beyond localhost is a deliberate
	// choice the operator must make.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// StateConfig configures the persistent security state file.
type StateConfig struct {
	// Path is the state file location. Defaults to
	// ~/.toolwarden/state.json.
	Path string `yaml:"path" mapstructure:"path"`
}

// SetDefaults applies default values to every optional field. Bool
// fields that default to true consult viper so an explicit false in the
// file or environment is not overwritten.
func (c *Config) SetDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if !viper.IsSet("security.enabled") {
		c.Security.Enabled = true
	}

	if c.Authentication.Type == "" {
		c.Authentication.Type = "none"
	}
	if c.Authentication.TokenExpiry == 0 {
		c.Authentication.TokenExpiry = 3600
	}
	if c.Authentication.StoreTimeout == "" {
		c.Authentication.StoreTimeout = "5s"
	}

	if c.Session.TTL == "" {
		c.Session.TTL = "0"
	}
	if c.Session.CleanupInterval == "" {
		c.Session.CleanupInterval = "5m"
	}

	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxIdle == "" {
		c.RateLimit.MaxIdle = "1h"
	}

	if c.Authorization.CacheSize == 0 {
		c.Authorization.CacheSize = 1024
	}

	if c.Validation.MaxCommandLength == 0 {
		c.Validation.MaxCommandLength = 1000
	}
	if c.Validation.MaxPathLength == 0 {
		c.Validation.MaxPathLength = 260
	}
	if c.Validation.MaxIdentifierLength == 0 {
		c.Validation.MaxIdentifierLength = 255
	}

	if !viper.IsSet("audit.enabled") {
		c.Audit.Enabled = true
	}
	if !viper.IsSet("audit.log_all_operations") {
		c.Audit.LogAllOperations = true
	}
	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 30
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}

	if c.Ops.Addr == "" {
		c.Ops.Addr = "127.0.0.1:9090"
	}

	if c.State.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.State.Path = filepath.Join(home, ".toolwarden", "state.json")
		}
	}
}

// Duration parses a duration field that passed validation, falling back
// to def when the field is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// TokenExpiryDuration returns the token lifetime as a duration.
func (c AuthenticationConfig) TokenExpiryDuration() time.Duration {
	return time.Duration(c.TokenExpiry) * time.Second
}

// WindowDuration returns the global rate-limit window as a duration.
func (c RateLimitConfig) WindowDuration() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// WindowDuration returns the override window, or zero when the global
// window should apply.
func (c ResourceLimitConfig) WindowDuration() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
