package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/adapter/outbound/state"
	"github.com/toolwarden/toolwarden/internal/config"
	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

var (
	userAddPassword string
	userAddRoles    []string
	userAddSHA256   bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local accounts in the state file",
	Long: `Manage the local accounts stored in state.json.

Accounts added here survive restarts and take precedence over accounts
declared inline in the config when usernames collide. Config-declared
accounts are read-only from this command; edit the config file to
change them.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add or update a local account",
	Long: `Add a local account to the state file, or update it when the
username already exists.

The password is hashed with Argon2id before it is stored; pass --sha256
to produce a legacy SHA-256 digest instead. Note that passwords passed
on the command line may be visible in shell history.

Examples:
  toolwarden user add alice --password s3cret --role admin
  toolwarden user add bob --password hunter2 --role user --role auditor`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local accounts",
	Long: `List the accounts stored in the state file.

Accounts declared inline in the config are not shown; they live in the
config file, not the state file.`,
	Args: cobra.NoArgs,
	RunE: runUserList,
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove a local account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRemove,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRemoveCmd)

	userAddCmd.Flags().StringVar(&userAddPassword, "password", "", "password to hash and store (required)")
	userAddCmd.Flags().StringArrayVar(&userAddRoles, "role", []string{"user"}, "role to assign (repeatable)")
	userAddCmd.Flags().BoolVar(&userAddSHA256, "sha256", false, "store a legacy SHA-256 digest instead of Argon2id")
	_ = userAddCmd.MarkFlagRequired("password")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	stateStore, securityState, err := openState()
	if err != nil {
		return err
	}

	hash, err := hashForStorage(userAddPassword, userAddSHA256)
	if err != nil {
		return err
	}

	verb := "added"
	if securityState.FindUser(username) != nil {
		verb = "updated"
	}

	securityState.UpsertUser(state.UserEntry{
		Username:     username,
		PasswordHash: hash,
		Roles:        userAddRoles,
		CreatedAt:    time.Now().UTC(),
	})
	if err := stateStore.Save(securityState); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	fmt.Printf("%s user %q (roles: %s) in %s\n", verb, username, strings.Join(userAddRoles, ", "), stateStore.Path())
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	stateStore, securityState, err := openState()
	if err != nil {
		return err
	}

	if len(securityState.Users) == 0 {
		fmt.Printf("no local accounts in %s\n", stateStore.Path())
		return nil
	}

	fmt.Printf("%-20s %-24s %-10s %s\n", "USERNAME", "ROLES", "HASH", "CREATED")
	for _, u := range securityState.Users {
		fmt.Printf("%-20s %-24s %-10s %s\n",
			u.Username,
			strings.Join(u.Roles, ","),
			auth.DetectHashType(u.PasswordHash),
			u.CreatedAt.Format(time.RFC3339),
		)
	}
	return nil
}

func runUserRemove(cmd *cobra.Command, args []string) error {
	username := args[0]

	stateStore, securityState, err := openState()
	if err != nil {
		return err
	}

	if !securityState.RemoveUser(username) {
		return fmt.Errorf("user %q not found in %s", username, stateStore.Path())
	}
	if err := stateStore.Save(securityState); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	fmt.Printf("removed user %q from %s\n", username, stateStore.Path())
	return nil
}

// openState loads the state file at the resolved path, creating the
// default in memory when the file does not exist yet.
func openState() (*state.FileStateStore, *state.SecurityState, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	stateStore := state.NewFileStateStore(resolveStatePath(loadConfigQuiet()), logger)
	securityState, err := stateStore.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load state: %w", err)
	}
	return stateStore, securityState, nil
}

// hashForStorage hashes a password for the state file. Argon2id by
// default, legacy SHA-256 on request.
func hashForStorage(password string, useSHA256 bool) (string, error) {
	if useSHA256 {
		return "sha256:" + auth.HashPasswordSHA256(password), nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// loadConfigQuiet loads the config for commands that only need it to
// locate files. Load failures are tolerated: the command falls back to
// flag and environment defaults.
func loadConfigQuiet() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	return cfg
}
