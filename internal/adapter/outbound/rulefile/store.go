// Package rulefile loads authorization rules from a standalone YAML file.
//
// The file is re-read on every ListRules call, so a reload of the policy
// service picks up edits without a restart. Inline rules passed at
// construction keep their place ahead of the file's rules: declaration
// order is the evaluation contract.
package rulefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/toolwarden/toolwarden/internal/domain/policy"
)

// fileDoc is the YAML document shape.
//
//	rules:
//	  - name: reader-files
//	    resource: file
//	    actions: [read, list]
//	    allow: true
//	    conditions:
//	      - type: path_whitelist
//	        values: [/srv/data, /tmp]
type fileDoc struct {
	Rules []fileRule `yaml:"rules"`
}

type fileRule struct {
	Name       string          `yaml:"name"`
	Resource   string          `yaml:"resource"`
	Actions    []string        `yaml:"actions"`
	Allow      bool            `yaml:"allow"`
	Conditions []fileCondition `yaml:"conditions"`
}

type fileCondition struct {
	Type   string   `yaml:"type"`
	Values []string `yaml:"values"`
	Flag   string   `yaml:"flag"`
	Equals any      `yaml:"equals"`
	Expr   string   `yaml:"expr"`
}

func (fr fileRule) toDomain() policy.Rule {
	r := policy.Rule{
		Name:     fr.Name,
		Resource: fr.Resource,
		Actions:  fr.Actions,
		Allow:    fr.Allow,
	}
	for _, fc := range fr.Conditions {
		r.Conditions = append(r.Conditions, policy.Condition{
			Type:   policy.ConditionType(fc.Type),
			Values: fc.Values,
			Flag:   fc.Flag,
			Equals: fc.Equals,
			Expr:   fc.Expr,
		})
	}
	return r
}

// Store implements policy.RuleStore over a YAML rules file. It does not
// validate rule contents; the policy service validates the full set when
// it loads.
type Store struct {
	path   string
	inline []policy.Rule
}

// NewStore creates a rule store reading from the given path. Inline rules
// are returned ahead of the file's rules on every list.
func NewStore(path string, inline ...policy.Rule) *Store {
	return &Store{path: path, inline: inline}
}

// Path returns the rules file path.
func (s *Store) Path() string {
	return s.path
}

// ListRules reads and parses the rules file. A missing or malformed file
// is an error so startup fails loudly instead of running with an empty
// rule set.
func (s *Store) ListRules(ctx context.Context) ([]policy.Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rules file %s: %w", s.path, err)
	}

	rules := make([]policy.Rule, 0, len(s.inline)+len(doc.Rules))
	rules = append(rules, s.inline...)
	for _, fr := range doc.Rules {
		rules = append(rules, fr.toDomain())
	}
	return rules, nil
}

// Compile-time interface verification.
var _ policy.RuleStore = (*Store)(nil)
