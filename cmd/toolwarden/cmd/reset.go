package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetIncludeAudit bool
	resetForce        bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset toolwarden to a clean state",
	Long: `Reset toolwarden by removing persistent state files.

By default, only state.json (with its backup and lock file) is removed.
This clears all local accounts and the persisted signing secret; tokens
signed with that secret stop verifying.

On next start, toolwarden boots fresh from the config file alone.

Optional flags:
  --include-audit   Also remove the audit directory or database
  --force           Skip confirmation prompt

Examples:
  # Reset state only (interactive confirmation)
  toolwarden reset

  # Reset everything without prompting
  toolwarden reset --include-audit --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetIncludeAudit, "include-audit", false, "Also remove audit files")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg := loadConfigQuiet()
	statePath := resolveStatePath(cfg)

	type target struct {
		path string
		desc string
	}
	var targets []target

	targets = append(targets, target{statePath, "state file"})
	targets = append(targets, target{statePath + ".bak", "state backup"})
	targets = append(targets, target{statePath + ".lock", "state lock"})
	targets = append(targets, target{statePath + ".tmp", "state temp file"})

	if resetIncludeAudit && cfg != nil {
		switch {
		case strings.HasPrefix(cfg.Audit.Output, "file://"):
			targets = append(targets, target{strings.TrimPrefix(cfg.Audit.Output, "file://"), "audit directory"})
		case strings.HasPrefix(cfg.Audit.Output, "sqlite://"):
			targets = append(targets, target{strings.TrimPrefix(cfg.Audit.Output, "sqlite://"), "audit database"})
		}
	}

	// Keep only targets that exist.
	var existing []target
	for _, t := range targets {
		if _, err := os.Stat(t.path); err == nil {
			existing = append(existing, t)
		}
	}

	if len(existing) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to reset, no state files found.")
		return nil
	}

	fmt.Fprintln(os.Stderr, "The following will be removed:")
	for _, t := range existing {
		fmt.Fprintf(os.Stderr, "  - %s (%s)\n", t.path, t.desc)
	}

	if !resetForce {
		fmt.Fprint(os.Stderr, "\nProceed? [y/N] ")
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck // interactive prompt, error irrelevant
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	var failures int
	for _, t := range existing {
		if err := os.RemoveAll(t.path); err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR removing %s: %v\n", t.path, err)
			failures++
		} else {
			fmt.Fprintf(os.Stderr, "  Removed %s\n", t.path)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d file(s) could not be removed", failures)
	}

	fmt.Fprintln(os.Stderr, "\nReset complete. toolwarden will start fresh on next launch.")
	return nil
}
