package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolwarden/toolwarden/internal/adapter/outbound/memory"
	"github.com/toolwarden/toolwarden/internal/adapter/outbound/state"
	"github.com/toolwarden/toolwarden/internal/config"
	"github.com/toolwarden/toolwarden/internal/domain/auth"
	"github.com/toolwarden/toolwarden/internal/domain/guard"
	"github.com/toolwarden/toolwarden/internal/domain/ratelimit"
	"github.com/toolwarden/toolwarden/internal/domain/session"
	"github.com/toolwarden/toolwarden/internal/domain/validation"
	"github.com/toolwarden/toolwarden/internal/service"
)

var (
	checkDetails  []string
	checkUsername string
	checkPassword string
	checkToken    string
)

var checkCmd = &cobra.Command{
	Use:   "check <action> <resource>",
	Short: "Run one operation through the full check chain",
	Long: `Run a single operation through authentication, validation, rate
limiting, authorization, and path policy, then print the outcome.

The command assembles the same chain the embedded core runs, evaluates
one invocation against it, and exits 0 when the operation is allowed or
1 when any stage denies it. Decisions made here are not written to the
audit sink.

Details are passed as repeated -d key=value flags and become the
operation's details map, which validation and rule conditions inspect.

Examples:
  # Is this command allowed for the anonymous caller?
  toolwarden check execute command -d command="ls -l"

  # Check as a named user (basic auth)
  toolwarden check read file -d path=/etc/passwd --username alice --password secret

  # Check with a signed token
  toolwarden check admin config --token "$TOKEN"`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringArrayVarP(&checkDetails, "detail", "d", nil, "operation detail as key=value (repeatable)")
	checkCmd.Flags().StringVar(&checkUsername, "username", "", "username for basic authentication")
	checkCmd.Flags().StringVar(&checkPassword, "password", "", "password for basic authentication")
	checkCmd.Flags().StringVar(&checkToken, "token", "", "signed token for token authentication")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	details := make(map[string]any, len(checkDetails))
	for _, d := range checkDetails {
		key, value, ok := strings.Cut(d, "=")
		if !ok {
			return fmt.Errorf("invalid detail %q (expected key=value)", d)
		}
		details[key] = value
	}

	ctx := cmd.Context()
	gate, err := buildCheckGate(ctx, cfg, logger)
	if err != nil {
		return err
	}

	inv := guard.NewInvocation(args[0], args[1], details)
	inv.Credentials = auth.Credentials{
		Username: checkUsername,
		Password: checkPassword,
		Token:    checkToken,
	}

	result, err := gate.Execute(ctx, inv, &guard.Passthrough{})
	if err != nil {
		return fmt.Errorf("denied (%s): %s", guard.ErrorKind(err), guard.SafeErrorMessage(err))
	}

	// Re-evaluate authorization to surface the matching rule. The chain
	// already decided; this hits the decision cache.
	decision, err := gate.Authorize(ctx, result.User, result.Operation())
	if err != nil {
		return fmt.Errorf("authorization lookup failed: %w", err)
	}

	fmt.Println("allowed")
	fmt.Printf("  user:   %s\n", result.UserID())
	if decision.RuleName != "" {
		fmt.Printf("  rule:   %s\n", decision.RuleName)
	}
	fmt.Printf("  reason: %s\n", decision.Reason)
	return nil
}

// buildCheckGate assembles a one-shot gate: the same chain the embedded
// core runs, without metrics, telemetry, background sweeps, or a real
// audit sink.
func buildCheckGate(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service.GateService, error) {
	stateStore := state.NewFileStateStore(resolveStatePath(cfg), logger)
	securityState, err := stateStore.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	credStore := memory.NewCredentialStore()
	if err := seedCredentials(ctx, credStore, cfg, securityState); err != nil {
		return nil, err
	}

	var tokens *auth.TokenService
	if cfg.Security.Enabled && cfg.Authentication.Type != string(auth.ModeNone) {
		secret, err := stateStore.EnsureSigningSecret(securityState, cfg.Authentication.SigningSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve signing secret: %w", err)
		}
		tokens, err = auth.NewTokenService(secret, cfg.Authentication.TokenExpiryDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create token service: %w", err)
		}
	}

	authService, err := auth.NewService(
		cfg.Security.Enabled,
		auth.Mode(cfg.Authentication.Type),
		credStore,
		tokens,
		config.Duration(cfg.Authentication.StoreTimeout, auth.DefaultStoreTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	sessions := session.NewRegistry(memory.NewSessionStore(), memory.NewGrantStore(), session.Config{
		TTL: config.Duration(cfg.Session.TTL, 0),
	})

	validator, err := validation.NewValidator(validation.Config{
		MaxCommandLength:    cfg.Validation.MaxCommandLength,
		MaxPathLength:       cfg.Validation.MaxPathLength,
		MaxIdentifierLength: cfg.Validation.MaxIdentifierLength,
		ExtraDeniedPatterns: cfg.Validation.ExtraDeniedPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = memory.NewSlidingWindowLimiter()
	}

	policyService, err := service.NewPolicyService(ctx, cfg.Security.Enabled, buildRuleStore(cfg), logger,
		service.WithCacheSize(cfg.Authorization.CacheSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy service: %w", err)
	}

	// Never started: Record drops entries, so one-shot checks leave no
	// audit trail.
	audits := service.NewAuditService(memory.NewAuditStoreWithWriter(io.Discard), logger, service.WithAuditDisabled())

	return service.NewGateService(
		cfg.Security.Enabled,
		authService,
		sessions,
		validator,
		limiter,
		policyService,
		audits,
		logger,
		service.WithRateLimits(
			ratelimit.Limit{Requests: cfg.RateLimit.Limit, Window: cfg.RateLimit.WindowDuration()},
			perResourceLimits(cfg),
		),
		service.WithPathPolicy(guard.NewPathPolicy(cfg.Authorization.BlockedPaths, cfg.Authorization.AllowedPaths, logger)),
	), nil
}
