package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	ophttp "github.com/toolwarden/toolwarden/internal/adapter/inbound/http"
	auditfile "github.com/toolwarden/toolwarden/internal/adapter/outbound/audit"
	"github.com/toolwarden/toolwarden/internal/adapter/outbound/memory"
	"github.com/toolwarden/toolwarden/internal/adapter/outbound/rulefile"
	"github.com/toolwarden/toolwarden/internal/adapter/outbound/sqlite"
	"github.com/toolwarden/toolwarden/internal/adapter/outbound/state"
	"github.com/toolwarden/toolwarden/internal/config"
	"github.com/toolwarden/toolwarden/internal/domain/audit"
	"github.com/toolwarden/toolwarden/internal/domain/auth"
	"github.com/toolwarden/toolwarden/internal/domain/guard"
	"github.com/toolwarden/toolwarden/internal/domain/policy"
	"github.com/toolwarden/toolwarden/internal/domain/ratelimit"
	"github.com/toolwarden/toolwarden/internal/domain/session"
	"github.com/toolwarden/toolwarden/internal/domain/validation"
	"github.com/toolwarden/toolwarden/internal/observe"
	"github.com/toolwarden/toolwarden/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the security core standalone",
	Long: `Start the toolwarden security core as its own process.

The core is a library: host servers embed it and route every privileged
operation through the check chain. Running it standalone validates the
configuration, initializes the state file, and keeps the audit pipeline
and the ops listener running, which makes it useful as a configuration
smoke test and as a sidecar health/metrics surface.

Examples:
  # Start with config file settings
  toolwarden start

  # Start with a specific config file
  toolwarden --config /path/to/toolwarden.yaml start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	// Logger to stderr: stdout is reserved for the audit stream when
	// audit.output is stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, resolveStatePath(cfg), logger); err != nil {
		return err
	}

	logger.Info("toolwarden stopped")
	return nil
}

// run wires all components together and blocks until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, statePath string, logger *slog.Logger) error {
	// ===== Load/create state.json =====
	stateStore := state.NewFileStateStore(statePath, logger)
	securityState, err := stateStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	// Save immediately to create the file if it didn't exist.
	if err := stateStore.Save(securityState); err != nil {
		return fmt.Errorf("failed to save initial state: %w", err)
	}
	logger.Info("state loaded", "path", statePath, "users", len(securityState.Users))

	// ===== Authentication =====
	credStore := memory.NewCredentialStore()
	if err := seedCredentials(ctx, credStore, cfg, securityState); err != nil {
		return err
	}
	logger.Debug("seeded credentials",
		"config_users", len(cfg.Authentication.Users),
		"state_users", len(securityState.Users),
	)

	// The signing secret is only resolved when tokens can be issued or
	// verified, so a mode=none setup never writes one to the state file.
	var tokens *auth.TokenService
	if cfg.Security.Enabled && cfg.Authentication.Type != string(auth.ModeNone) {
		secret, err := stateStore.EnsureSigningSecret(securityState, cfg.Authentication.SigningSecret)
		if err != nil {
			return fmt.Errorf("failed to resolve signing secret: %w", err)
		}
		tokens, err = auth.NewTokenService(secret, cfg.Authentication.TokenExpiryDuration())
		if err != nil {
			return fmt.Errorf("failed to create token service: %w", err)
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
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	// ===== Sessions =====
	sessionStore := memory.NewSessionStoreWithConfig(config.Duration(cfg.Session.CleanupInterval, 5*time.Minute))
	sessionStore.StartCleanup(ctx)
	defer sessionStore.Stop()
	sessions := session.NewRegistry(sessionStore, memory.NewGrantStore(), session.Config{
		TTL: config.Duration(cfg.Session.TTL, 0),
	})

	// ===== Input validation =====
	validator, err := validation.NewValidator(validation.Config{
		MaxCommandLength:    cfg.Validation.MaxCommandLength,
		MaxPathLength:       cfg.Validation.MaxPathLength,
		MaxIdentifierLength: cfg.Validation.MaxIdentifierLength,
		ExtraDeniedPatterns: cfg.Validation.ExtraDeniedPatterns,
	})
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	// ===== Rate limiting =====
	// The interface variable stays nil when disabled so the gate skips
	// the stage entirely.
	var slidingWindow *memory.SlidingWindowLimiter
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		slidingWindow = memory.NewSlidingWindowLimiterWithConfig(
			config.Duration(cfg.RateLimit.CleanupInterval, 5*time.Minute),
			config.Duration(cfg.RateLimit.MaxIdle, time.Hour),
		)
		slidingWindow.StartCleanup(ctx)
		defer slidingWindow.Stop()
		limiter = slidingWindow

		logger.Debug("rate limiting enabled",
			"limit", cfg.RateLimit.Limit,
			"window_seconds", cfg.RateLimit.WindowSeconds,
			"overrides", len(cfg.RateLimit.PerResource),
		)
	}

	// ===== Authorization =====
	policyService, err := service.NewPolicyService(ctx, cfg.Security.Enabled, buildRuleStore(cfg), logger,
		service.WithCacheSize(cfg.Authorization.CacheSize),
	)
	if err != nil {
		return fmt.Errorf("failed to create policy service: %w", err)
	}

	// ===== Audit pipeline =====
	auditStore, err := buildAuditStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit store: %w", err)
	}
	defer func() { _ = auditStore.Close() }()

	auditOpts := []service.AuditOption{
		service.WithSuccessLogging(cfg.Audit.LogAllOperations),
		service.WithChannelSize(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(config.Duration(cfg.Audit.FlushInterval, time.Second)),
		service.WithSendTimeout(config.Duration(cfg.Audit.SendTimeout, 100*time.Millisecond)),
		service.WithWarningThreshold(cfg.Audit.WarningThreshold),
	}
	if !cfg.Audit.Enabled {
		auditOpts = append(auditOpts, service.WithAuditDisabled())
	}
	auditService := service.NewAuditService(auditStore, logger, auditOpts...)
	auditService.Start(ctx)
	defer auditService.Stop()

	// ===== Observability =====
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observe.NewMetrics(registry)
	metrics.WatchSessions(sessionStore.Size)
	if slidingWindow != nil {
		metrics.WatchRateLimitKeys(slidingWindow.Size)
	}
	metrics.WatchAuditQueue(
		auditService.ChannelDepth,
		auditService.ChannelCapacity,
		func() uint64 { return uint64(auditService.DroppedEntries()) },
	)

	telemetry, err := observe.NewTelemetry(
		cfg.Telemetry.TracesEnabled, cfg.Telemetry.MetricsEnabled,
		Version, os.Stderr, logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var stats guard.StatsRecorder = metrics
	gateOpts := []service.GateOption{
		service.WithRateLimits(
			ratelimit.Limit{Requests: cfg.RateLimit.Limit, Window: cfg.RateLimit.WindowDuration()},
			perResourceLimits(cfg),
		),
		service.WithPathPolicy(guard.NewPathPolicy(cfg.Authorization.BlockedPaths, cfg.Authorization.AllowedPaths, logger)),
	}
	if telemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()

		telemetryStats, err := telemetry.Stats()
		if err != nil {
			return fmt.Errorf("failed to create telemetry instruments: %w", err)
		}
		stats = observe.Fanout(metrics, telemetryStats)
		gateOpts = append(gateOpts, service.WithTracer(telemetry.Tracer()))
	}
	gateOpts = append(gateOpts, service.WithGateStats(stats))

	// ===== Assemble the core =====
	gate := service.NewGateService(
		cfg.Security.Enabled,
		authService,
		sessions,
		validator,
		limiter,
		policyService,
		auditService,
		logger,
		gateOpts...,
	)

	logger.Info("toolwarden starting",
		"version", Version,
		"enforcing", gate.Enabled(),
		"auth_mode", string(authService.Mode()),
		"users", credStore.Size(),
		"rules", len(policyService.Rules()),
		"rate_limit", cfg.RateLimit.Enabled,
		"audit_output", cfg.Audit.Output,
		"state_file", statePath,
	)

	printBanner(Version, cfg, credStore.Size(), len(policyService.Rules()))

	// ===== Ops listener =====
	if cfg.Ops.Enabled {
		health := ophttp.NewHealthChecker(sessionStore, slidingWindow, auditService, Version)
		ops := ophttp.NewOpsServer(
			ophttp.WithAddr(cfg.Ops.Addr),
			ophttp.WithLogger(logger),
			ophttp.WithRegistry(registry),
			ophttp.WithHealthChecker(health),
		)
		logger.Info("ops listener enabled", "addr", cfg.Ops.Addr)
		return ops.Start(ctx)
	}

	<-ctx.Done()
	return nil
}

// seedCredentials fills the in-memory credential store from the config's
// inline accounts and then the state file's accounts. A state account
// with the same username replaces the config one: the state file is the
// writable store.
func seedCredentials(ctx context.Context, creds *memory.CredentialStore, cfg *config.Config, st *state.SecurityState) error {
	now := time.Now().UTC()
	for _, u := range cfg.Authentication.Users {
		cred := &auth.Credential{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Roles:        auth.RolesFromStrings(u.Roles),
			CreatedAt:    now,
		}
		if err := creds.PutCredential(ctx, cred); err != nil {
			return fmt.Errorf("failed to seed config user %q: %w", u.Username, err)
		}
	}
	for _, u := range st.Users {
		if err := creds.PutCredential(ctx, u.Credential()); err != nil {
			return fmt.Errorf("failed to seed state user %q: %w", u.Username, err)
		}
	}
	return nil
}

// configRules converts the inline authorization rules to domain rules,
// preserving declaration order.
func configRules(cfg *config.Config) []policy.Rule {
	rules := make([]policy.Rule, 0, len(cfg.Authorization.Rules))
	for _, rc := range cfg.Authorization.Rules {
		r := policy.Rule{
			Name:     rc.Name,
			Resource: rc.Resource,
			Actions:  rc.Actions,
			Allow:    rc.Allow,
		}
		for _, cc := range rc.Conditions {
			r.Conditions = append(r.Conditions, policy.Condition{
				Type:   policy.ConditionType(cc.Type),
				Values: cc.Values,
				Flag:   cc.Flag,
				Equals: cc.Equals,
				Expr:   cc.Expr,
			})
		}
		rules = append(rules, r)
	}
	return rules
}

// buildRuleStore returns the rule source: the standalone YAML rules file
// when one is configured (inline rules stay ahead of its rules),
// otherwise the inline rules frozen in memory.
func buildRuleStore(cfg *config.Config) policy.RuleStore {
	inline := configRules(cfg)
	if cfg.Authorization.RulesFile != "" {
		return rulefile.NewStore(cfg.Authorization.RulesFile, inline...)
	}
	return memory.NewRuleStoreWithRules(inline)
}

// buildAuditStore creates the audit sink selected by audit.output.
func buildAuditStore(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	output := cfg.Audit.Output
	switch {
	case output == "stdout":
		logger.Debug("audit output: stdout", "buffer_size", cfg.Audit.BufferSize)
		return memory.NewAuditStore(cfg.Audit.BufferSize), nil

	case strings.HasPrefix(output, "file://"):
		dir := strings.TrimPrefix(output, "file://")
		store, err := auditfile.NewFileStore(auditfile.FileStoreConfig{
			Dir:           dir,
			RetentionDays: cfg.Audit.RetentionDays,
			MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit directory %s: %w", dir, err)
		}
		logger.Debug("audit output: file", "dir", dir, "retention_days", cfg.Audit.RetentionDays)
		return store, nil

	case strings.HasPrefix(output, "sqlite://"):
		path := strings.TrimPrefix(output, "sqlite://")
		store, err := sqlite.NewAuditStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database %s: %w", path, err)
		}
		logger.Debug("audit output: sqlite", "path", path)
		return store, nil

	default:
		return nil, fmt.Errorf("invalid audit output: %s (must be 'stdout', 'file://<dir>', or 'sqlite://<path>')", output)
	}
}

// perResourceLimits builds the override table from config. An override
// without its own window uses the global window.
func perResourceLimits(cfg *config.Config) map[string]ratelimit.Limit {
	if len(cfg.RateLimit.PerResource) == 0 {
		return nil
	}
	overrides := make(map[string]ratelimit.Limit, len(cfg.RateLimit.PerResource))
	for _, rl := range cfg.RateLimit.PerResource {
		window := rl.WindowDuration()
		if window <= 0 {
			window = cfg.RateLimit.WindowDuration()
		}
		overrides[rl.Resource] = ratelimit.Limit{Requests: rl.Limit, Window: window}
	}
	return overrides
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// posture, and resource counts. Stderr keeps stdout free for the audit
// stream.
func printBanner(version string, cfg *config.Config, users, rules int) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	modeStr := green + "enforcing" + reset
	if !cfg.Security.Enabled {
		modeStr = yellow + "disabled" + reset + dim + " (all checks pass)" + reset
	}

	opsStr := dim + "disabled" + reset
	if cfg.Ops.Enabled {
		addr := cfg.Ops.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		opsStr = fmt.Sprintf("http://%s/healthz", addr)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%stoolwarden %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Auth:", cfg.Authentication.Type)
	fmt.Fprintf(os.Stderr, "  %-14s %d local\n", "Users:", users)
	fmt.Fprintf(os.Stderr, "  %-14s %d active\n", "Rules:", rules)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Audit:", cfg.Audit.Output)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Ops:", opsStr)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}
