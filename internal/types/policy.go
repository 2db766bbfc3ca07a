// internal/types/policy.go
package types

/*
 * Domain types for policy routing.
 *
 * PolicyDefinition is the loader-facing record: its RulesExpr is kept as the raw
 * decoded value (map[string]any, []any, ...) so that one malformed expression
 * can be reported as a warning instead of failing the whole policy set.
 *
 * Policy is the validated, immutable form held by the policy store.
 *
 * Dependencies: None
 */

// PolicyConfig is the configuration returned to the caller on match.
// URL is the destination identifier; Metadata is opaque and returned verbatim.
// Metadata values may be any JSON value: strings, numbers, booleans, null,
// lists and nested objects.
type PolicyConfig struct {
	URL      string         `json:"url" yaml:"url"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// PolicyDefinition is a policy record as produced by a policy source.
type PolicyDefinition struct {
	Name      string       `json:"name" yaml:"name"`
	Priority  int          `json:"priority" yaml:"priority"`
	RulesExpr any          `json:"rulesExpr" yaml:"rulesExpr"`
	Config    PolicyConfig `json:"config" yaml:"config"`
}

// PolicyCollection is the top-level document shape of a policy file.
type PolicyCollection struct {
	Items []PolicyDefinition `json:"items" yaml:"items"`
}

// RuleExpression maps a field name to its allowed values.
// Conjunction across fields, disjunction within a field's list.
type RuleExpression map[string][]string

// Allows reports whether value is an allowed value for field.
func (r RuleExpression) Allows(field, value string) bool {
	for _, v := range r[field] {
		if v == value {
			return true
		}
	}
	return false
}

// Policy is a validated policy held by the policy store.
type Policy struct {
	ID       PolicyID       // load ordinal
	Name     string         // unique across the store
	Priority int            // lower value = higher precedence
	Rules    RuleExpression // empty means the policy never matches
	Config   PolicyConfig
}

// Matchable reports whether the policy has a non-empty rule expression.
func (p *Policy) Matchable() bool {
	return len(p.Rules) > 0
}

// PolicyWarning describes a recoverable per-policy definition problem.
// The policy is retained with an empty rule expression.
type PolicyWarning struct {
	Policy string
	Field  string // empty when the whole expression is unusable
	Reason string
}

func (w PolicyWarning) String() string {
	if w.Field == "" {
		return "policy " + w.Policy + ": " + w.Reason
	}
	return "policy " + w.Policy + ": field " + w.Field + ": " + w.Reason
}
