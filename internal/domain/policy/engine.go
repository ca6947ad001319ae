package policy

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

// Engine decides whether a user may perform an operation.
type Engine interface {
	Authorize(ctx context.Context, user *auth.User, op Operation) (Decision, error)
}

// RuleStore provides the ordered authorization rule list.
type RuleStore interface {
	ListRules(ctx context.Context) ([]Rule, error)
}

// ExprFunc evaluates a CEL expression condition against an operation.
// A nil ExprFunc means expression conditions never hold.
type ExprFunc func(expr string, user *auth.User, op Operation) (bool, error)

// Evaluate runs the decision algorithm. It is a pure function: no I/O, no
// shared state, bounded time.
//
// The algorithm, in order: a disabled switch allows everything; the admin
// role allows everything; otherwise rules are walked in declaration order
// and the first rule matching the operation's resource and action with all
// conditions holding returns its verdict. No matching rule means deny.
func Evaluate(enabled bool, user *auth.User, rules []Rule, op Operation, exprEval ExprFunc) Decision {
	if !enabled {
		return Decision{Allowed: true, Reason: ReasonDisabled}
	}
	if user != nil && user.HasRole(auth.RoleAdmin) {
		return Decision{Allowed: true, Reason: ReasonAdminBypass}
	}
	for _, r := range rules {
		if !r.Match(op) {
			continue
		}
		if !conditionsHold(r.Conditions, user, op, exprEval) {
			continue
		}
		return Decision{Allowed: r.Allow, RuleName: r.Name, Reason: matchReason(r)}
	}
	return Decision{Allowed: false, Reason: ReasonDefaultDeny}
}

// Match reports whether the rule applies to the operation's resource and
// action. Conditions are not consulted here.
func (r Rule) Match(op Operation) bool {
	return r.Resource == op.Resource && slices.Contains(r.Actions, op.Action)
}

// conditionsHold reports whether every condition on a rule is satisfied.
func conditionsHold(conds []Condition, user *auth.User, op Operation, exprEval ExprFunc) bool {
	for _, c := range conds {
		if !c.holds(user, op, exprEval) {
			return false
		}
	}
	return true
}

// holds evaluates a single condition. Unknown types and failed expression
// evaluations do not hold, so a malformed condition can never widen access.
func (c Condition) holds(user *auth.User, op Operation, exprEval ExprFunc) bool {
	switch c.Type {
	case ConditionProcessWhitelist:
		name, _ := op.Details["process_name"].(string)
		return slices.Contains(c.Values, name)
	case ConditionPathWhitelist:
		path, ok := op.Details["path"].(string)
		if !ok {
			return false
		}
		for _, prefix := range c.Values {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	case ConditionFlagEquality:
		return flagEqual(op.Details[c.Flag], c.Equals)
	case ConditionExpr:
		if exprEval == nil {
			return false
		}
		ok, err := exprEval(c.Expr, user, op)
		return err == nil && ok
	default:
		return false
	}
}

// flagEqual compares a details value against the expected flag value.
// Numeric values are compared by magnitude so a YAML integer matches a
// caller-supplied float of the same value.
func flagEqual(got, want any) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	if gf, ok := toFloat(got); ok {
		wf, ok := toFloat(want)
		return ok && gf == wf
	}
	if !reflect.TypeOf(got).Comparable() || !reflect.TypeOf(want).Comparable() {
		return false
	}
	return got == want
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func matchReason(r Rule) string {
	if r.Name == "" {
		return fmt.Sprintf("matched rule for %s", r.Resource)
	}
	return fmt.Sprintf("matched rule %s", r.Name)
}
