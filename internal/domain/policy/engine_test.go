package policy

import (
	"errors"
	"testing"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
)

func testUser(roles ...auth.Role) *auth.User {
	return auth.NewUser("user-1", roles...)
}

func TestEvaluate_DisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{Resource: "process", Actions: []string{"delete"}, Allow: false},
	}
	op := Operation{Action: "delete", Resource: "process"}

	d := Evaluate(false, testUser(auth.RoleGuest), rules, op, nil)
	if !d.Allowed {
		t.Errorf("Allowed = false, want true when disabled")
	}
	if d.Reason != ReasonDisabled {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonDisabled)
	}
}

func TestEvaluate_DefaultDeny(t *testing.T) {
	t.Parallel()

	op := Operation{Action: "delete", Resource: "process"}

	d := Evaluate(true, testUser(auth.RoleGuest), nil, op, nil)
	if d.Allowed {
		t.Errorf("Allowed = true, want false with no matching rule")
	}
	if d.Reason != ReasonDefaultDeny {
		t.Errorf("Reason = %q, want %q", d.Reason, ReasonDefaultDeny)
	}
}

func TestEvaluate_AdminBypass(t *testing.T) {
	t.Parallel()

	// An explicit deny rule must not reach an admin.
	rules := []Rule{
		{Name: "deny-all-files", Resource: "file", Actions: []string{"read", "write", "delete"}, Allow: false},
	}

	ops := []Operation{
		{Action: "read", Resource: "file"},
		{Action: "delete", Resource: "process"},
		{Action: "execute", Resource: "command", Details: map[string]any{"command": "rm -rf /"}},
	}
	for _, op := range ops {
		d := Evaluate(true, testUser(auth.RoleAdmin), rules, op, nil)
		if !d.Allowed {
			t.Errorf("Evaluate(admin, %s %s).Allowed = false, want true", op.Action, op.Resource)
		}
		if d.Reason != ReasonAdminBypass {
			t.Errorf("Reason = %q, want %q", d.Reason, ReasonAdminBypass)
		}
	}
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{Name: "deny-first", Resource: "file", Actions: []string{"write"}, Allow: false},
		{Name: "allow-second", Resource: "file", Actions: []string{"write"}, Allow: true},
	}
	op := Operation{Action: "write", Resource: "file"}

	d := Evaluate(true, testUser(auth.RoleUser), rules, op, nil)
	if d.Allowed {
		t.Errorf("Allowed = true, want false from the first matching rule")
	}
	if d.RuleName != "deny-first" {
		t.Errorf("RuleName = %q, want %q", d.RuleName, "deny-first")
	}
}

func TestEvaluate_FailedConditionSkipsToNextRule(t *testing.T) {
	t.Parallel()

	// The first rule's condition fails, so evaluation must continue to the
	// second rule rather than stop.
	rules := []Rule{
		{
			Name:     "allow-whitelisted",
			Resource: "process",
			Actions:  []string{"start"},
			Allow:    true,
			Conditions: []Condition{
				{Type: ConditionProcessWhitelist, Values: []string{"nginx"}},
			},
		},
		{Name: "deny-rest", Resource: "process", Actions: []string{"start"}, Allow: false},
	}
	op := Operation{
		Action:   "start",
		Resource: "process",
		Details:  map[string]any{"process_name": "netcat"},
	}

	d := Evaluate(true, testUser(auth.RoleUser), rules, op, nil)
	if d.Allowed {
		t.Errorf("Allowed = true, want false from the fallthrough rule")
	}
	if d.RuleName != "deny-rest" {
		t.Errorf("RuleName = %q, want %q", d.RuleName, "deny-rest")
	}
}

func TestEvaluate_MatchedRuleVerdict(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{
			Name:     "ops-processes",
			Resource: "process",
			Actions:  []string{"start", "stop"},
			Allow:    true,
			Conditions: []Condition{
				{Type: ConditionProcessWhitelist, Values: []string{"nginx", "postgres"}},
			},
		},
	}

	tests := []struct {
		name    string
		op      Operation
		allowed bool
	}{
		{
			name: "whitelisted process allowed",
			op: Operation{
				Action:   "start",
				Resource: "process",
				Details:  map[string]any{"process_name": "nginx"},
			},
			allowed: true,
		},
		{
			name: "unlisted process denied by default",
			op: Operation{
				Action:   "start",
				Resource: "process",
				Details:  map[string]any{"process_name": "netcat"},
			},
			allowed: false,
		},
		{
			name: "action not covered denied by default",
			op: Operation{
				Action:   "kill",
				Resource: "process",
				Details:  map[string]any{"process_name": "nginx"},
			},
			allowed: false,
		},
		{
			name:    "different resource denied by default",
			op:      Operation{Action: "start", Resource: "container"},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(true, testUser(auth.RoleUser), rules, tt.op, nil)
			if d.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.allowed)
			}
		})
	}
}

func TestEvaluate_NilUser(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{Name: "allow-read", Resource: "file", Actions: []string{"read"}, Allow: true},
	}

	d := Evaluate(true, nil, rules, Operation{Action: "read", Resource: "file"}, nil)
	if !d.Allowed {
		t.Errorf("Allowed = false, want true for a matching unconditional rule")
	}
}

func TestRule_Match(t *testing.T) {
	t.Parallel()

	rule := Rule{Resource: "file", Actions: []string{"read", "list"}}

	tests := []struct {
		name string
		op   Operation
		want bool
	}{
		{"resource and action match", Operation{Action: "read", Resource: "file"}, true},
		{"second action matches", Operation{Action: "list", Resource: "file"}, true},
		{"action not listed", Operation{Action: "write", Resource: "file"}, false},
		{"resource differs", Operation{Action: "read", Resource: "process"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := rule.Match(tt.op); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_ProcessWhitelist(t *testing.T) {
	t.Parallel()

	cond := Condition{Type: ConditionProcessWhitelist, Values: []string{"nginx", "postgres"}}

	tests := []struct {
		name    string
		details map[string]any
		want    bool
	}{
		{"listed process", map[string]any{"process_name": "nginx"}, true},
		{"unlisted process", map[string]any{"process_name": "netcat"}, false},
		{"missing process name", map[string]any{}, false},
		{"nil details", nil, false},
		{"non-string process name", map[string]any{"process_name": 42}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			op := Operation{Action: "start", Resource: "process", Details: tt.details}
			if got := cond.holds(nil, op, nil); got != tt.want {
				t.Errorf("holds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_PathWhitelist(t *testing.T) {
	t.Parallel()

	cond := Condition{Type: ConditionPathWhitelist, Values: []string{"/srv/data", "/tmp"}}

	tests := []struct {
		name    string
		details map[string]any
		want    bool
	}{
		{"first prefix", map[string]any{"path": "/srv/data/reports/q3.csv"}, true},
		{"second prefix", map[string]any{"path": "/tmp/scratch"}, true},
		{"exact prefix boundary", map[string]any{"path": "/srv/data"}, true},
		{"outside whitelist", map[string]any{"path": "/etc/passwd"}, false},
		{"missing path", map[string]any{}, false},
		{"non-string path", map[string]any{"path": 7}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			op := Operation{Action: "read", Resource: "file", Details: tt.details}
			if got := cond.holds(nil, op, nil); got != tt.want {
				t.Errorf("holds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_FlagEquality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cond    Condition
		details map[string]any
		want    bool
	}{
		{
			name:    "bool flag set",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "safe_mode", Equals: true},
			details: map[string]any{"safe_mode": true},
			want:    true,
		},
		{
			name:    "bool flag mismatch",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "safe_mode", Equals: true},
			details: map[string]any{"safe_mode": false},
			want:    false,
		},
		{
			name:    "flag absent",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "safe_mode", Equals: true},
			details: map[string]any{},
			want:    false,
		},
		{
			name:    "string flag",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "env", Equals: "staging"},
			details: map[string]any{"env": "staging"},
			want:    true,
		},
		{
			name:    "int matches float of same value",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "level", Equals: 3},
			details: map[string]any{"level": 3.0},
			want:    true,
		},
		{
			name:    "numeric mismatch",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "level", Equals: 3},
			details: map[string]any{"level": 4},
			want:    false,
		},
		{
			name:    "nil expected matches absent flag",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "owner", Equals: nil},
			details: map[string]any{},
			want:    true,
		},
		{
			name:    "uncomparable value never matches",
			cond:    Condition{Type: ConditionFlagEquality, Flag: "tags", Equals: "x"},
			details: map[string]any{"tags": []string{"x"}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			op := Operation{Action: "write", Resource: "file", Details: tt.details}
			if got := tt.cond.holds(nil, op, nil); got != tt.want {
				t.Errorf("holds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_Expr(t *testing.T) {
	t.Parallel()

	cond := Condition{Type: ConditionExpr, Expr: `details.owner == user_id`}
	op := Operation{Action: "write", Resource: "file", Details: map[string]any{"owner": "user-1"}}

	t.Run("evaluator true", func(t *testing.T) {
		t.Parallel()
		eval := func(expr string, user *auth.User, op Operation) (bool, error) { return true, nil }
		if !cond.holds(testUser(auth.RoleUser), op, eval) {
			t.Error("holds() = false, want true")
		}
	})

	t.Run("evaluator false", func(t *testing.T) {
		t.Parallel()
		eval := func(expr string, user *auth.User, op Operation) (bool, error) { return false, nil }
		if cond.holds(testUser(auth.RoleUser), op, eval) {
			t.Error("holds() = true, want false")
		}
	})

	t.Run("evaluator error fails closed", func(t *testing.T) {
		t.Parallel()
		eval := func(expr string, user *auth.User, op Operation) (bool, error) {
			return true, errors.New("boom")
		}
		if cond.holds(testUser(auth.RoleUser), op, eval) {
			t.Error("holds() = true, want false on evaluator error")
		}
	})

	t.Run("nil evaluator fails closed", func(t *testing.T) {
		t.Parallel()
		if cond.holds(testUser(auth.RoleUser), op, nil) {
			t.Error("holds() = true, want false without an evaluator")
		}
	})
}

func TestCondition_UnknownTypeFailsClosed(t *testing.T) {
	t.Parallel()

	cond := Condition{Type: ConditionType("time_window"), Values: []string{"09:00-17:00"}}
	op := Operation{Action: "read", Resource: "file"}
	if cond.holds(nil, op, nil) {
		t.Error("holds() = true, want false for an unknown condition type")
	}
}

func TestEvaluate_ExprConditionSkipsRuleOnError(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{
			Name:     "allow-owned",
			Resource: "file",
			Actions:  []string{"write"},
			Allow:    true,
			Conditions: []Condition{
				{Type: ConditionExpr, Expr: `details.owner == user_id`},
			},
		},
		{Name: "deny-writes", Resource: "file", Actions: []string{"write"}, Allow: false},
	}
	op := Operation{Action: "write", Resource: "file", Details: map[string]any{"owner": "someone-else"}}

	eval := func(expr string, user *auth.User, op Operation) (bool, error) {
		return false, errors.New("no such attribute")
	}

	d := Evaluate(true, testUser(auth.RoleUser), rules, op, eval)
	if d.Allowed {
		t.Errorf("Allowed = true, want false")
	}
	if d.RuleName != "deny-writes" {
		t.Errorf("RuleName = %q, want %q", d.RuleName, "deny-writes")
	}
}

func TestDecisionContext(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	if got := DecisionFromContext(ctx); got != nil {
		t.Errorf("DecisionFromContext(empty) = %v, want nil", got)
	}

	d := &Decision{Allowed: true, RuleName: "ops-processes", Reason: "matched rule ops-processes"}
	ctx = WithDecision(ctx, d)
	if got := DecisionFromContext(ctx); got != d {
		t.Errorf("DecisionFromContext() = %v, want %v", got, d)
	}
}
