package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/toolwarden/toolwarden/internal/domain/audit"
	"github.com/toolwarden/toolwarden/internal/domain/policy"
)

// Recorder accepts audit entries.
// This interface is satisfied by service.AuditService.
type Recorder interface {
	Record(entry audit.Entry)
}

// StatsRecorder counts decision outcomes and check latency.
// Optional; satisfied by the metrics collector.
type StatsRecorder interface {
	RecordAllow()
	RecordDeny(kind string)
	RecordLatency(elapsed time.Duration)
}

// AuditInterceptor records the outcome of every invocation passing
// through the stages below it, allowed or denied. It sits directly
// under authentication so denials from validation, rate limiting, and
// authorization are all captured.
// Chain order: Auth -> Audit -> Validation -> RateLimit -> Policy -> executor.
type AuditInterceptor struct {
	recorder Recorder
	stats    StatsRecorder // optional, may be nil
	next     Interceptor
	logger   *slog.Logger
}

// NewAuditInterceptor creates an AuditInterceptor wrapping next.
func NewAuditInterceptor(recorder Recorder, stats StatsRecorder, next Interceptor, logger *slog.Logger) *AuditInterceptor {
	return &AuditInterceptor{
		recorder: recorder,
		stats:    stats,
		next:     next,
		logger:   logger,
	}
}

// Intercept runs the rest of the chain, then records the outcome. The
// downstream result and error are returned unchanged; recording is
// fire-and-forget.
func (a *AuditInterceptor) Intercept(ctx context.Context, inv *Invocation) (*Invocation, error) {
	start := time.Now()

	// Decision holder for the authorization stage to fill.
	decision := &policy.Decision{}
	ctx = policy.WithDecision(ctx, decision)

	result, err := a.next.Intercept(ctx, inv)

	elapsed := time.Since(start)
	if a.stats != nil {
		if err == nil {
			a.stats.RecordAllow()
		} else {
			a.stats.RecordDeny(ErrorKind(err))
		}
		a.stats.RecordLatency(elapsed)
	}

	entry := a.buildEntry(inv, decision, elapsed, err)
	a.recorder.Record(entry)

	a.logger.Debug("audit recorded",
		"action", inv.Action,
		"resource", inv.Resource,
		"result", entry.Result,
		"latency_us", elapsed.Microseconds(),
	)

	return result, err
}

// buildEntry assembles the audit entry for one completed invocation.
// Details are copied so the entry's redaction pass never mutates the
// caller's map.
func (a *AuditInterceptor) buildEntry(inv *Invocation, decision *policy.Decision, elapsed time.Duration, err error) audit.Entry {
	details := make(map[string]any, len(inv.Details)+4)
	for k, v := range inv.Details {
		details[k] = v
	}
	details["request_id"] = inv.RequestID
	details["latency_us"] = elapsed.Microseconds()

	if decision.Reason != "" {
		details["reason"] = decision.Reason
		if decision.RuleName != "" {
			details["rule"] = decision.RuleName
		}
	}

	if err != nil {
		details["denied_by"] = ErrorKind(err)
		details["error"] = err.Error()
	}

	var userID string
	if inv.User != nil {
		userID = inv.User.ID
	}

	entry := audit.NewEntry(userID, inv.Action, inv.Resource, audit.ResultOf(err == nil), details)
	entry.IPAddress = inv.ClientIP
	entry.UserAgent = inv.UserAgent
	return entry
}

// Compile-time check that AuditInterceptor implements Interceptor.
var _ Interceptor = (*AuditInterceptor)(nil)
