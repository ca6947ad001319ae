// Package guard chains the security checks that stand between a caller
// and a privileged operation. Each stage wraps the next: authentication
// establishes identity, the audit stage records every outcome, then
// validation, rate limiting, and authorization each get a chance to stop
// the invocation with a typed error before the terminal executor runs.
package guard

import "context"

// Interceptor processes an invocation and passes it down the chain.
// Implementations either hand the invocation to their next interceptor
// or return an error to stop it.
type Interceptor interface {
	Intercept(ctx context.Context, inv *Invocation) (*Invocation, error)
}

// Func adapts a plain function to the Interceptor interface. The
// terminal executor of a chain is typically a Func.
type Func func(ctx context.Context, inv *Invocation) (*Invocation, error)

// Intercept calls f.
func (f Func) Intercept(ctx context.Context, inv *Invocation) (*Invocation, error) {
	return f(ctx, inv)
}

// Passthrough passes invocations through unchanged. Terminal for chains
// that only check, never execute.
type Passthrough struct{}

// Intercept returns the invocation unchanged.
func (p *Passthrough) Intercept(_ context.Context, inv *Invocation) (*Invocation, error) {
	return inv, nil
}

// Compile-time checks that both adapters implement Interceptor.
var _ Interceptor = (*Passthrough)(nil)
var _ Interceptor = (Func)(nil)
