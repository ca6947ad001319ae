package policy

import "context"

// decisionKey is the context key type for authorization decisions.
type decisionKey struct{}

// WithDecision stores an authorization decision in the context so later
// pipeline stages (such as audit recording) can report which rule fired.
func WithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext retrieves the authorization decision from the
// context. Returns nil if none is stored.
func DecisionFromContext(ctx context.Context) *Decision {
	d, _ := ctx.Value(decisionKey{}).(*Decision)
	return d
}
