package cel

import (
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/toolwarden/toolwarden/internal/domain/auth"
	"github.com/toolwarden/toolwarden/internal/domain/policy"
)

// NewConditionEnvironment creates a CEL environment for rule expression
// conditions. Expressions see the operation as:
//   - action, resource: the operation's verb and object kind
//   - details: the operation's parameter map
//   - user_id: the authenticated user's identifier
//   - user_roles: the user's role names
//
// plus custom functions: glob, detail, detail_contains.
func NewConditionEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("action", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("details", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("user_roles", cel.ListType(cel.StringType)),

		// glob: pattern match against a name.
		// Usage: glob("backup-*", details.job)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// detail: extract a specific detail by key, null when absent.
		// Usage: detail(details, "path")
		cel.Function("detail",
			cel.Overload("detail_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(func(mapVal, keyVal ref.Val) ref.Val {
					key := keyVal.Value().(string)
					m, ok := mapVal.Value().(map[ref.Val]ref.Val)
					if ok {
						k := types.String(key)
						if v, found := m[k]; found {
							return v
						}
						return types.NullValue
					}
					if goMap, ok := mapVal.Value().(map[string]any); ok {
						if v, found := goMap[key]; found {
							return types.DefaultTypeAdapter.NativeToValue(v)
						}
					}
					return types.NullValue
				}),
			),
		),

		// detail_contains: check if any string detail value contains a
		// substring.
		// Usage: detail_contains(details, "..")
		cel.Function("detail_contains",
			cel.Overload("detail_contains_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(mapVal, substrVal ref.Val) ref.Val {
					substr := substrVal.Value().(string)
					goVal := mapVal.Value()
					if goMap, ok := goVal.(map[string]any); ok {
						for _, v := range goMap {
							if s, ok := v.(string); ok {
								if strings.Contains(s, substr) {
									return types.Bool(true)
								}
							}
						}
					}
					if refMap, ok := goVal.(map[ref.Val]ref.Val); ok {
						for _, v := range refMap {
							if s, ok := v.Value().(string); ok {
								if strings.Contains(s, substr) {
									return types.Bool(true)
								}
							}
						}
					}
					return types.Bool(false)
				}),
			),
		),
	)
}

// BuildActivation creates the CEL activation map for an evaluation. Nil
// details and a nil user map to empty values so expressions never see
// missing variables.
func BuildActivation(user *auth.User, op policy.Operation) map[string]any {
	details := op.Details
	if details == nil {
		details = map[string]any{}
	}

	var userID string
	var roles []string
	if user != nil {
		userID = user.ID
		roles = auth.RoleStrings(user.Roles)
	}
	if roles == nil {
		roles = []string{}
	}

	return map[string]any{
		"action":     op.Action,
		"resource":   op.Resource,
		"details":    details,
		"user_id":    userID,
		"user_roles": roles,
	}
}
