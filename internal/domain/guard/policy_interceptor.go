package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/toolwarden/toolwarden/internal/domain/policy"
)

// PolicyInterceptor asks the authorization engine for a decision and
// stops denied invocations. The decision is also written through the
// context holder installed by AuditInterceptor so the audit entry can
// name the rule that fired.
type PolicyInterceptor struct {
	engine policy.Engine
	next   Interceptor
	logger *slog.Logger
}

// NewPolicyInterceptor creates a PolicyInterceptor wrapping next.
func NewPolicyInterceptor(engine policy.Engine, next Interceptor, logger *slog.Logger) *PolicyInterceptor {
	return &PolicyInterceptor{engine: engine, next: next, logger: logger}
}

// Intercept evaluates the invocation against the rule set. A denial
// returns an *AccessDeniedError; an engine failure is an internal error
// and never widens access.
func (p *PolicyInterceptor) Intercept(ctx context.Context, inv *Invocation) (*Invocation, error) {
	decision, err := p.engine.Authorize(ctx, inv.User, inv.Operation())
	if err != nil {
		p.logger.Error("authorization evaluation failed",
			"action", inv.Action,
			"resource", inv.Resource,
			"error", err,
		)
		return nil, fmt.Errorf("%w: authorization evaluation: %v", ErrInternal, err)
	}

	if holder := policy.DecisionFromContext(ctx); holder != nil {
		*holder = decision
	}

	if !decision.Allowed {
		p.logger.Info("operation denied",
			"action", inv.Action,
			"resource", inv.Resource,
			"user_id", inv.UserID(),
			"rule", decision.RuleName,
			"reason", decision.Reason,
		)
		return nil, &AccessDeniedError{
			Action:   inv.Action,
			Resource: inv.Resource,
			RuleName: decision.RuleName,
			Reason:   decision.Reason,
		}
	}

	p.logger.Debug("operation allowed",
		"action", inv.Action,
		"resource", inv.Resource,
		"user_id", inv.UserID(),
		"reason", decision.Reason,
	)

	return p.next.Intercept(ctx, inv)
}

// Compile-time check that PolicyInterceptor implements Interceptor.
var _ Interceptor = (*PolicyInterceptor)(nil)
