package memory

import (
	"context"
	"sync"

	"github.com/toolwarden/toolwarden/internal/domain/policy"
)

// RuleStore implements policy.RuleStore with an in-memory ordered slice.
// Thread-safe for concurrent access. Declaration order is preserved: the
// engine evaluates rules first-match-wins.
type RuleStore struct {
	mu    sync.RWMutex
	rules []policy.Rule
}

// NewRuleStore creates an empty in-memory rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{}
}

// NewRuleStoreWithRules creates an in-memory rule store seeded with the
// given rules.
func NewRuleStoreWithRules(rules []policy.Rule) *RuleStore {
	s := &RuleStore{}
	s.rules = copyRules(rules)
	return s
}

// ListRules returns the rules in declaration order.
func (s *RuleStore) ListRules(ctx context.Context) ([]policy.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to prevent mutation
	return copyRules(s.rules), nil
}

// ReplaceRules swaps the full rule set, preserving the order given.
func (s *RuleStore) ReplaceRules(ctx context.Context, rules []policy.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	s.rules = copyRules(rules)
	return nil
}

// Size returns the number of rules in the store.
func (s *RuleStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// copyRules deep-copies a rule slice, including per-rule actions and
// conditions.
func copyRules(rules []policy.Rule) []policy.Rule {
	if rules == nil {
		return nil
	}
	out := make([]policy.Rule, len(rules))
	for i, r := range rules {
		ruleCopy := r
		if r.Actions != nil {
			ruleCopy.Actions = make([]string, len(r.Actions))
			copy(ruleCopy.Actions, r.Actions)
		}
		if r.Conditions != nil {
			ruleCopy.Conditions = make([]policy.Condition, len(r.Conditions))
			for j, c := range r.Conditions {
				condCopy := c
				if c.Values != nil {
					condCopy.Values = make([]string, len(c.Values))
					copy(condCopy.Values, c.Values)
				}
				ruleCopy.Conditions[j] = condCopy
			}
		}
		out[i] = ruleCopy
	}
	return out
}

// Compile-time interface verification.
var _ policy.RuleStore = (*RuleStore)(nil)
