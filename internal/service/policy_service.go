package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	celeval "github.com/toolwarden/toolwarden/internal/adapter/outbound/cel"
	"github.com/toolwarden/toolwarden/internal/domain/auth"
	"github.com/toolwarden/toolwarden/internal/domain/policy"
)

// ruleSnapshot is the immutable rule set stored in atomic.Value. Expression
// conditions are compiled once at load time and looked up by source text
// during evaluation.
type ruleSnapshot struct {
	rules    []policy.Rule
	programs map[string]cel.Program
}

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key      uint64
	decision policy.Decision
	prev     *lruEntry
	next     *lruEntry
}

// DecisionCache provides bounded LRU caching for authorization decisions.
// Thread-safe with Mutex (both Get and Put mutate LRU order).
type DecisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

// NewDecisionCache creates a new LRU cache with the given max size.
func NewDecisionCache(maxSize int) *DecisionCache {
	return &DecisionCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached decision. Returns (decision, true) on hit,
// (zero, false) on miss. On hit, the entry is promoted to the head.
func (c *DecisionCache) Get(key uint64) (policy.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.decision, true
	}
	return policy.Decision{}, false
}

// Put stores a decision in the cache. If at capacity, the least recently
// used entry is evicted.
func (c *DecisionCache) Put(key uint64, decision policy.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.decision = decision
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, decision: decision}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Clear empties the cache. Called on rule reload.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

// Size returns current cache size.
func (c *DecisionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// moveToHeadLocked moves an existing entry to the head. Must be called with
// lock held.
func (c *DecisionCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

// pushHeadLocked inserts an entry at the head. Must be called with lock held.
func (c *DecisionCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// unlinkLocked removes an entry from the linked list. Must be called with
// lock held.
func (c *DecisionCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

// evictTailLocked removes the least recently used entry. Must be called
// with lock held.
func (c *DecisionCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// computeCacheKey generates a unique hash for an authorization check.
// Includes the resource, action, user identity, sorted roles, and a details
// hash for collision resistance.
func computeCacheKey(user *auth.User, op policy.Operation) uint64 {
	h := xxhash.New()

	_, _ = h.WriteString(op.Resource)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(op.Action)
	_, _ = h.Write([]byte{0})

	var userID string
	var roles []string
	if user != nil {
		userID = user.ID
		roles = auth.RoleStrings(user.Roles)
	}
	_, _ = h.WriteString(userID)
	_, _ = h.Write([]byte{0})

	// Sorted roles (deterministic)
	sort.Strings(roles)
	_, _ = h.WriteString(strings.Join(roles, ","))
	_, _ = h.Write([]byte{0})

	// Details hash (JSON for determinism)
	if len(op.Details) > 0 {
		detailsJSON, _ := json.Marshal(op.Details)
		_, _ = h.Write(detailsJSON)
	}

	return h.Sum64()
}

// PolicyService implements policy.Engine over an ordered rule set loaded
// from a RuleStore. Rules are validated and their expression conditions
// compiled at load time; Reload() swaps in an edited rule set at runtime.
// Uses atomic.Value for lock-free reads on the hot path and a bounded LRU
// cache for repeated decisions.
type PolicyService struct {
	enabled   bool
	store     policy.RuleStore
	evaluator *celeval.Evaluator
	snapshot  atomic.Value // stores *ruleSnapshot
	mu        sync.Mutex   // Only for Reload() writes
	cache     *DecisionCache
	logger    *slog.Logger
}

// PolicyServiceOption configures PolicyService.
type PolicyServiceOption func(*PolicyService)

// WithCacheSize sets the maximum number of cached decisions.
func WithCacheSize(size int) PolicyServiceOption {
	return func(s *PolicyService) {
		s.cache = NewDecisionCache(size)
	}
}

// NewPolicyService creates a PolicyService that loads, validates, and
// compiles rules from the store. A malformed rule set is a startup error:
// no request is evaluated against rules that failed validation.
func NewPolicyService(ctx context.Context, enabled bool, store policy.RuleStore, logger *slog.Logger, opts ...PolicyServiceOption) (*PolicyService, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	s := &PolicyService{
		enabled:   enabled,
		store:     store,
		evaluator: evaluator,
		cache:     NewDecisionCache(1000), // Default 1000 entries
		logger:    logger,
	}

	// Apply options (may override default cache)
	for _, opt := range opts {
		opt(s)
	}

	rules, err := store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	snap, err := s.compileRules(rules)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(snap)

	logger.Info("policy service initialized",
		"enabled", enabled,
		"rules", len(snap.rules),
		"expressions_compiled", len(snap.programs),
		"cache_max_size", s.cache.maxSize,
	)

	return s, nil
}

// compileRules validates the rule set and compiles every expression
// condition once per distinct source text.
func (s *PolicyService) compileRules(rules []policy.Rule) (*ruleSnapshot, error) {
	if err := policy.ValidateRules(rules); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}

	programs := make(map[string]cel.Program)
	for _, r := range rules {
		for _, c := range r.Conditions {
			if c.Type != policy.ConditionExpr {
				continue
			}
			if _, ok := programs[c.Expr]; ok {
				continue
			}
			if err := s.evaluator.ValidateExpression(c.Expr); err != nil {
				return nil, fmt.Errorf("rule %s: %w", ruleLabel(r), err)
			}
			prg, err := s.evaluator.Compile(c.Expr)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", ruleLabel(r), err)
			}
			programs[c.Expr] = prg
		}
	}

	return &ruleSnapshot{rules: rules, programs: programs}, nil
}

func ruleLabel(r policy.Rule) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("for resource %q", r.Resource)
}

// loadSnapshot returns the current rule snapshot atomically (lock-free).
func (s *PolicyService) loadSnapshot() *ruleSnapshot {
	return s.snapshot.Load().(*ruleSnapshot)
}

// exprFunc adapts the snapshot's compiled programs to the domain's
// expression hook. Evaluation failures are logged and reported as errors
// so the rule is skipped rather than matched.
func (s *PolicyService) exprFunc(snap *ruleSnapshot) policy.ExprFunc {
	return func(expr string, user *auth.User, op policy.Operation) (bool, error) {
		prg, ok := snap.programs[expr]
		if !ok {
			return false, fmt.Errorf("expression not compiled: %q", expr)
		}
		result, err := s.evaluator.Evaluate(prg, user, op)
		if err != nil {
			s.logger.Warn("expression condition evaluation failed",
				"resource", op.Resource,
				"action", op.Action,
				"error", err,
			)
			return false, err
		}
		return result, nil
	}
}

// Authorize decides whether a user may perform an operation. Decisions are
// cached by user, roles, resource, action, and details. With the service
// disabled every operation is allowed and the cache is bypassed.
func (s *PolicyService) Authorize(ctx context.Context, user *auth.User, op policy.Operation) (policy.Decision, error) {
	if !s.enabled {
		return policy.Evaluate(false, user, nil, op, nil), nil
	}

	key := computeCacheKey(user, op)
	if d, ok := s.cache.Get(key); ok {
		return d, nil
	}

	// Lock-free read - no mutex needed
	snap := s.loadSnapshot()

	d := policy.Evaluate(true, user, snap.rules, op, s.exprFunc(snap))
	s.cache.Put(key, d)
	return d, nil
}

// Reload reloads, revalidates, and recompiles the rule set from the store.
// Safe to call concurrently with Authorize. On error the previous rule set
// stays active.
func (s *PolicyService) Reload(ctx context.Context) error {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	// Validate and compile outside the lock
	snap, err := s.compileRules(rules)
	if err != nil {
		return err
	}

	// Atomic swap (very brief mutex for Store)
	s.mu.Lock()
	s.snapshot.Store(snap)
	s.mu.Unlock()

	// Clear cache on reload (rules changed, cached decisions may be stale)
	s.cache.Clear()

	s.logger.Info("policy service reloaded",
		"rules", len(snap.rules),
		"expressions_compiled", len(snap.programs),
		"cache_cleared", true,
	)

	return nil
}

// CacheSize returns the number of cached decisions.
func (s *PolicyService) CacheSize() int {
	return s.cache.Size()
}

// Rules returns the currently active rule set.
func (s *PolicyService) Rules() []policy.Rule {
	return s.loadSnapshot().rules
}

// Compile-time interface verification.
var _ policy.Engine = (*PolicyService)(nil)
