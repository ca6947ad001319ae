package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for toolwarden.yaml/.yml
// in standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by Load).
		viper.SetConfigName("toolwarden")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: TOOLWARDEN_AUTHENTICATION_TYPE
	viper.SetEnvPrefix("TOOLWARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a toolwarden config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".toolwarden"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "toolwarden"))
		}
	} else {
		paths = append(paths, "/etc/toolwarden")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for toolwarden.yaml
// or .yml. Returns the full path of the first match, or empty string.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "toolwarden"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every scalar config key for environment
// variable support. Array-valued keys (users, rules, per_resource,
// path lists, extra patterns) must come from the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("security.enabled")

	_ = viper.BindEnv("authentication.type")
	_ = viper.BindEnv("authentication.token_expiry")
	_ = viper.BindEnv("authentication.signing_secret")
	_ = viper.BindEnv("authentication.store_timeout")

	_ = viper.BindEnv("session.ttl")
	_ = viper.BindEnv("session.cleanup_interval")

	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.limit")
	_ = viper.BindEnv("rate_limit.window_seconds")
	_ = viper.BindEnv("rate_limit.cleanup_interval")
	_ = viper.BindEnv("rate_limit.max_idle")

	_ = viper.BindEnv("authorization.rules_file")
	_ = viper.BindEnv("authorization.cache_size")

	_ = viper.BindEnv("validation.max_command_length")
	_ = viper.BindEnv("validation.max_path_length")
	_ = viper.BindEnv("validation.max_identifier_length")

	_ = viper.BindEnv("audit.enabled")
	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.log_all_operations")
	_ = viper.BindEnv("audit.retention_days")
	_ = viper.BindEnv("audit.max_file_size_mb")
	_ = viper.BindEnv("audit.channel_size")
	_ = viper.BindEnv("audit.batch_size")
	_ = viper.BindEnv("audit.flush_interval")
	_ = viper.BindEnv("audit.send_timeout")
	_ = viper.BindEnv("audit.warning_threshold")
	_ = viper.BindEnv("audit.buffer_size")

	_ = viper.BindEnv("telemetry.traces_enabled")
	_ = viper.BindEnv("telemetry.metrics_enabled")

	_ = viper.BindEnv("ops.enabled")
	_ = viper.BindEnv("ops.addr")

	_ = viper.BindEnv("state.path")
}

// Load reads the configuration file, applies environment overrides,
// fills defaults, and validates. Any failure is a configuration error:
// the caller should abort startup.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: read config file: %v", ErrInvalid, err)
		}
		// Config file not found: continue with env vars and defaults.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrInvalid, err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or
// empty when running on environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
