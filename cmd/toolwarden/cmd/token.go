package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/adapter/outbound/state"
	"github.com/toolwarden/toolwarden/internal/config"
	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <username>",
	Short: "Issue a signed token for a local user",
	Long: `Issue a signed stateless token carrying the user's identity and roles.

The user must exist in the state file or in the config's inline
accounts; the token embeds the roles found there. Tokens are signed
with the resolved signing secret (config value if set, otherwise the
one persisted in the state file), so any process sharing that secret
can verify them.

The token is printed alone on stdout so it can be captured directly:

  TOKEN=$(toolwarden token alice)
  toolwarden check admin config --token "$TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: config token_expiry)")
}

func runToken(cmd *cobra.Command, args []string) error {
	username := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	stateStore := state.NewFileStateStore(resolveStatePath(cfg), logger)
	securityState, err := stateStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	roles, err := lookupRoles(cfg, securityState, username)
	if err != nil {
		return err
	}

	secret, err := stateStore.EnsureSigningSecret(securityState, cfg.Authentication.SigningSecret)
	if err != nil {
		return fmt.Errorf("failed to resolve signing secret: %w", err)
	}

	expiry := cfg.Authentication.TokenExpiryDuration()
	if tokenTTL > 0 {
		expiry = tokenTTL
	}

	tokens, err := auth.NewTokenService(secret, expiry)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	token, err := tokens.Create(auth.NewUser(username, auth.RolesFromStrings(roles)...))
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires in %s\n", expiry)
	if cfg.Authentication.Type != string(auth.ModeToken) {
		fmt.Fprintf(os.Stderr, "warning: authentication.type is %q, tokens are only checked in token mode\n", cfg.Authentication.Type)
	}
	return nil
}

// lookupRoles resolves the roles for username: the state file wins,
// then the config's inline accounts.
func lookupRoles(cfg *config.Config, st *state.SecurityState, username string) ([]string, error) {
	if entry := st.FindUser(username); entry != nil {
		return entry.Roles, nil
	}
	for _, u := range cfg.Authentication.Users {
		if u.Username == username {
			return u.Roles, nil
		}
	}
	return nil, fmt.Errorf("user %q not found in state or config (add one with 'toolwarden user add')", username)
}
