// Package service composes the security domain into application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/toolwarden/toolwarden/internal/ctxkey"
	"github.com/toolwarden/toolwarden/internal/domain/audit"
	"github.com/toolwarden/toolwarden/internal/domain/auth"
	"github.com/toolwarden/toolwarden/internal/domain/guard"
	"github.com/toolwarden/toolwarden/internal/domain/policy"
	"github.com/toolwarden/toolwarden/internal/domain/ratelimit"
	"github.com/toolwarden/toolwarden/internal/domain/session"
	"github.com/toolwarden/toolwarden/internal/domain/validation"
)

// loggerFromContext retrieves the enriched logger from context.
// Uses the same key as the ops HTTP middleware for request_id enrichment.
// Returns nil if no logger is in context, allowing caller to fall back.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

// GateService is the assembled security core: authentication, input
// validation, rate limiting, authorization, and audit recording behind
// one handle. It is built once at startup and passed to every caller
// that guards operations; there is no package-level state.
//
// Guarded execution goes through Execute. The remaining methods expose
// each check directly for callers that need a single answer, such as a
// path check before opening a file.
type GateService struct {
	enabled   bool
	auth      *auth.Service
	sessions  *session.Registry
	validator *validation.Validator
	limiter   ratelimit.Limiter
	engine    policy.Engine
	audits    *AuditService
	paths     *guard.PathPolicy
	stats     guard.StatsRecorder // optional, may be nil
	tracer    trace.Tracer        // optional, may be nil
	logger    *slog.Logger

	defaultLimit ratelimit.Limit
	overrides    map[string]ratelimit.Limit
}

// GateOption configures optional GateService behavior.
type GateOption func(*GateService)

// WithRateLimits sets the default limit and per-resource overrides
// consulted by the rate limit stage and CheckRateLimit.
func WithRateLimits(def ratelimit.Limit, overrides map[string]ratelimit.Limit) GateOption {
	return func(s *GateService) {
		s.defaultLimit = def
		s.overrides = overrides
	}
}

// WithPathPolicy sets the path access lists behind CheckPathAccess.
func WithPathPolicy(paths *guard.PathPolicy) GateOption {
	return func(s *GateService) {
		s.paths = paths
	}
}

// WithGateStats installs a metrics recorder observing chain outcomes.
func WithGateStats(stats guard.StatsRecorder) GateOption {
	return func(s *GateService) {
		s.stats = stats
	}
}

// WithTracer emits a span around each guarded execution.
func WithTracer(tracer trace.Tracer) GateOption {
	return func(s *GateService) {
		s.tracer = tracer
	}
}

// NewGateService creates the security core from its components. When
// enabled is false every check passes and callers act as the anonymous
// identity; authentication and audit still run so the trail stays
// complete. A nil limiter disables rate limiting only.
func NewGateService(
	enabled bool,
	authSvc *auth.Service,
	sessions *session.Registry,
	validator *validation.Validator,
	limiter ratelimit.Limiter,
	engine policy.Engine,
	audits *AuditService,
	logger *slog.Logger,
	opts ...GateOption,
) *GateService {
	s := &GateService{
		enabled:      enabled,
		auth:         authSvc,
		sessions:     sessions,
		validator:    validator,
		limiter:      limiter,
		engine:       engine,
		audits:       audits,
		paths:        guard.NewPathPolicy(nil, nil, logger),
		logger:       logger,
		defaultLimit: ratelimit.DefaultLimit(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Enabled reports whether the security checks are active. When false
// every check passes and callers act as the anonymous identity.
func (s *GateService) Enabled() bool {
	return s.enabled
}

// Execute runs the invocation through the full chain with exec as the
// terminal stage: authenticate, audit-wrap, validate, rate-limit,
// authorize, then exec. The returned error is one of the typed failures
// from the guard package; transports present it to callers through
// guard.SafeErrorMessage.
func (s *GateService) Execute(ctx context.Context, inv *guard.Invocation, exec guard.Interceptor) (*guard.Invocation, error) {
	// Use enriched logger from context if available (includes request_id)
	logger := loggerFromContext(ctx)
	if logger == nil {
		logger = s.logger
	}

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "gate.execute",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("operation.action", inv.Action),
				attribute.String("operation.resource", inv.Resource),
			))
		defer span.End()
	}

	start := time.Now()
	result, err := s.chainFor(exec, logger).Intercept(ctx, inv)
	elapsed := time.Since(start)

	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, guard.ErrorKind(err))
		}

		// Authentication runs above the audit stage, so its denials never
		// reach the chain's recorder. Record them here instead.
		var authErr *guard.AuthenticationError
		if errors.As(err, &authErr) {
			s.recordAuthFailure(inv, authErr, elapsed)
		}

		logger.Debug("guarded operation denied",
			"action", inv.Action,
			"resource", inv.Resource,
			"kind", guard.ErrorKind(err),
			"latency_us", elapsed.Microseconds(),
		)
		return nil, err
	}

	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
	logger.Debug("guarded operation allowed",
		"action", inv.Action,
		"resource", inv.Resource,
		"user_id", result.UserID(),
		"latency_us", elapsed.Microseconds(),
	)

	return result, nil
}

// chainFor assembles the interceptor chain for one execution, innermost
// first, ending in exec. Rebuilt per call: the terminal stage and the
// request logger bind to this invocation only. With the core disabled
// only authentication and audit remain, yielding the anonymous identity
// and a recorded trail of open-access operations.
func (s *GateService) chainFor(exec guard.Interceptor, logger *slog.Logger) guard.Interceptor {
	chain := exec
	if s.enabled {
		chain = guard.NewPolicyInterceptor(s.engine, chain, logger)
		if s.limiter != nil {
			chain = guard.NewRateLimitInterceptor(s.limiter, s.defaultLimit, s.overrides, chain, logger)
		}
		chain = guard.NewValidationInterceptor(s.validator, chain, logger)
	}
	chain = guard.NewAuditInterceptor(s.audits, s.stats, chain, logger)
	chain = guard.NewAuthInterceptor(s.auth, chain, logger)
	return chain
}

// recordAuthFailure writes the audit entry and stats for a denied
// authentication, mirroring what the audit stage records for the
// checks below it.
func (s *GateService) recordAuthFailure(inv *guard.Invocation, authErr *guard.AuthenticationError, elapsed time.Duration) {
	if s.stats != nil {
		s.stats.RecordDeny(guard.KindAuthentication)
		s.stats.RecordLatency(elapsed)
	}

	details := make(map[string]any, len(inv.Details)+4)
	for k, v := range inv.Details {
		details[k] = v
	}
	details["request_id"] = inv.RequestID
	details["latency_us"] = elapsed.Microseconds()
	details["denied_by"] = guard.KindAuthentication
	details["error"] = authErr.Error()

	entry := audit.NewEntry(inv.UserID(), inv.Action, inv.Resource, audit.ResultFailure, details)
	entry.IPAddress = inv.ClientIP
	entry.UserAgent = inv.UserAgent
	s.audits.Record(entry)
}

// Authenticate verifies credentials without running the full chain.
func (s *GateService) Authenticate(ctx context.Context, creds auth.Credentials) auth.Result {
	return s.auth.Authenticate(ctx, creds)
}

// CreateToken issues a signed token for an authenticated user.
func (s *GateService) CreateToken(user *auth.User) (string, error) {
	return s.auth.CreateToken(user)
}

// Authorize evaluates the rule set for one operation.
func (s *GateService) Authorize(ctx context.Context, user *auth.User, op policy.Operation) (policy.Decision, error) {
	return s.engine.Authorize(ctx, user, op)
}

// ValidateInput sanitizes value and validates it according to its type.
// Recognized types are "command", "path", and "process_name"; any other
// type is sanitized only. Returns the sanitized value, or a
// *validation.Error naming every violated rule. With the core disabled
// the value is sanitized but not checked.
func (s *GateService) ValidateInput(inputType, value string) (string, error) {
	sanitized := validation.Sanitize(value)
	if !s.enabled {
		return sanitized, nil
	}

	var result validation.Result
	switch inputType {
	case "command":
		result = s.validator.ValidateCommand(sanitized)
	case "path":
		result = s.validator.ValidatePath(sanitized)
	case "process_name":
		result = s.validator.ValidateIdentifier(sanitized)
	default:
		return sanitized, nil
	}

	if err := result.Err(inputType); err != nil {
		return "", err
	}
	return sanitized, nil
}

// Sanitize strips control characters and trims the value without
// validating it.
func (s *GateService) Sanitize(value string) string {
	return validation.Sanitize(value)
}

// CheckRateLimit consumes one slot for the identifier and resource
// pair. Returns a *ratelimit.Error carrying the retry hint when the
// window is exhausted, nil when the call may proceed. An unavailable
// limiter allows the call through (fail open) with an error log.
func (s *GateService) CheckRateLimit(ctx context.Context, identifier, resource string) error {
	if !s.enabled || s.limiter == nil {
		return nil
	}

	key := ratelimit.FormatKey(identifier, resource)
	result, err := s.limiter.Allow(ctx, key, s.limitFor(resource))
	if err != nil {
		s.logger.Error("rate limit check failed",
			"key", key,
			"error", err,
		)
		return nil
	}

	if !result.Allowed {
		return &ratelimit.Error{Key: key, RetryAfter: result.RetryAfter}
	}
	return nil
}

// limitFor resolves the limit for a resource.
func (s *GateService) limitFor(resource string) ratelimit.Limit {
	if limit, ok := s.overrides[resource]; ok {
		return limit
	}
	return s.defaultLimit
}

// CheckPathAccess reports whether the path clears the configured access
// lists. Always true with the core disabled. See guard.PathPolicy for
// the resolution rules.
func (s *GateService) CheckPathAccess(path string) bool {
	if !s.enabled {
		return true
	}
	return s.paths.Check(path)
}

// RecordOperation writes an audit entry for an executed operation. The
// outcome payload lands under the "result" detail, truncated like any
// other oversized value. Recording is asynchronous and never fails the
// operation.
func (s *GateService) RecordOperation(user *auth.User, op policy.Operation, result any, ok bool) {
	details := make(map[string]any, len(op.Details)+1)
	for k, v := range op.Details {
		details[k] = v
	}
	if result != nil {
		details[audit.DetailResult] = fmt.Sprint(result)
	}

	var userID string
	if user != nil {
		userID = user.ID
	}
	s.audits.Record(audit.NewEntry(userID, op.Action, op.Resource, audit.ResultOf(ok), details))
}

// CreateSession opens a session for an authenticated user.
func (s *GateService) CreateSession(ctx context.Context, user *auth.User) (*session.Session, error) {
	return s.sessions.Create(ctx, user)
}

// GetSession resolves a session ID to its user. Returns
// session.ErrSessionNotFound for unknown or expired sessions.
func (s *GateService) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.sessions.Get(ctx, id)
}

// DeleteSession terminates a session. Idempotent: deleting an unknown
// session is not an error.
func (s *GateService) DeleteSession(ctx context.Context, id string) error {
	return s.sessions.Delete(ctx, id)
}
