// Package cmd provides the CLI commands for toolwarden.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/config"
)

var cfgFile string
var stateFilePath string

var rootCmd = &cobra.Command{
	Use:   "toolwarden",
	Short: "toolwarden - trust boundary for tool-invocation servers",
	Long: `toolwarden is an embeddable trust boundary for servers that execute
tool invocations on behalf of remote callers.

It authenticates callers, validates inputs, enforces rate limits,
authorizes operations against ordered rules, and records an audit
trail. Host servers embed the assembled core in-process; this binary
manages its configuration and state and can run the core standalone.

Quick start:
  1. Create a config file: toolwarden.yaml
  2. Try an operation: toolwarden check execute command -d command="ls -l"
  3. Run the core standalone: toolwarden start

Configuration:
  Config is loaded from toolwarden.yaml in the current directory,
  $HOME/.toolwarden/, or /etc/toolwarden/.

  Environment variables can override config values with the TOOLWARDEN_ prefix.
  Example: TOOLWARDEN_SERVER_LOG_LEVEL=debug

Commands:
  start          Start the security core standalone
  check          Run one operation through the check chain
  user           Manage local accounts in the state file
  token          Issue a signed token for a local user
  hash-password  Hash a password for config or the state file
  reset          Reset to clean state (remove state.json)
  version        Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./toolwarden.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateFilePath, "state", "", "path to state.json file (default: ~/.toolwarden/state.json)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// resolveStatePath picks the state file location: the --state flag wins,
// then the loaded config (which already folds in TOOLWARDEN_STATE_PATH),
// then the home-directory default. cfg may be nil for commands that run
// without a valid config.
func resolveStatePath(cfg *config.Config) string {
	if stateFilePath != "" {
		return stateFilePath
	}
	if cfg != nil && cfg.State.Path != "" {
		return cfg.State.Path
	}
	if env := os.Getenv("TOOLWARDEN_STATE_PATH"); env != "" {
		return env
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".toolwarden", "state.json")
	}
	return "./state.json"
}
