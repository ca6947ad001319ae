// Package policy contains the domain types and decision algorithm for
// operation authorization.
package policy

import (
	"errors"
	"fmt"
)

// Operation is a single authorization-checkable action request.
type Operation struct {
	// Action is the verb being performed (e.g. "read", "execute").
	Action string
	// Resource is the kind of object acted on (e.g. "file", "process").
	Resource string
	// Details carries operation parameters consulted by rule conditions.
	Details map[string]any
}

// ConditionType identifies a rule condition kind.
type ConditionType string

const (
	// ConditionProcessWhitelist requires details["process_name"] to be one
	// of the condition's values.
	ConditionProcessWhitelist ConditionType = "process_whitelist"
	// ConditionPathWhitelist requires details["path"] to start with one of
	// the condition's values.
	ConditionPathWhitelist ConditionType = "path_whitelist"
	// ConditionFlagEquality requires details[flag] to equal the condition's
	// expected value.
	ConditionFlagEquality ConditionType = "flag_equality"
	// ConditionExpr requires a CEL expression to evaluate to true.
	ConditionExpr ConditionType = "expr"
)

// Condition is a single predicate attached to a rule. All conditions on a
// rule must hold for the rule to match.
type Condition struct {
	// Type selects which predicate applies.
	Type ConditionType
	// Values holds the whitelist entries for the whitelist condition types.
	Values []string
	// Flag is the details key inspected by ConditionFlagEquality.
	Flag string
	// Equals is the expected value for ConditionFlagEquality.
	Equals any
	// Expr is the CEL source for ConditionExpr.
	Expr string
}

// Validate checks that the condition is well formed for its type.
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionProcessWhitelist, ConditionPathWhitelist:
		if len(c.Values) == 0 {
			return fmt.Errorf("%s condition requires at least one value", c.Type)
		}
	case ConditionFlagEquality:
		if c.Flag == "" {
			return errors.New("flag_equality condition requires a flag key")
		}
	case ConditionExpr:
		if c.Expr == "" {
			return errors.New("expr condition requires an expression")
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	return nil
}

// Rule grants or denies a set of actions on a resource. Rules form an
// ordered sequence and the first matching rule wins, so declaration order
// is part of the contract. Later rules for the same resource and action
// are unreachable once an earlier one matches.
type Rule struct {
	// Name is an optional human-readable identifier used in decisions.
	Name string
	// Resource the rule applies to. Must equal the operation's resource.
	Resource string
	// Actions the rule applies to. The operation's action must be listed.
	Actions []string
	// Allow is the verdict when the rule matches.
	Allow bool
	// Conditions must all hold for the rule to match. A failed condition
	// skips the rule; evaluation continues with the next one.
	Conditions []Condition
}

// Validate checks that the rule is well formed.
func (r Rule) Validate() error {
	if r.Resource == "" {
		return errors.New("rule requires a resource")
	}
	if len(r.Actions) == 0 {
		return errors.New("rule requires at least one action")
	}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidateRules validates every rule in declaration order.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return fmt.Errorf("rule %s: %w", name, err)
		}
	}
	return nil
}

// Decision reasons for the outcomes not produced by a rule.
const (
	ReasonDisabled    = "authorization disabled"
	ReasonAdminBypass = "admin role bypass"
	ReasonDefaultDeny = "no matching rule (default deny)"
)

// Decision is the outcome of evaluating an operation against the rule set.
type Decision struct {
	// Allowed is true if the operation is permitted.
	Allowed bool
	// RuleName names the rule that produced this decision, if any.
	RuleName string
	// Reason explains why the decision was made.
	Reason string
}
