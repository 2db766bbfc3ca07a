// internal/rules/store.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/solatis/policyrouter/internal/types"
)

/*
 * Policy store construction.
 *
 * Load validates policy definitions and produces an immutable PolicyStore.
 *
 * Load workflow:
 *   1. Validate names (non-empty, bounded, unique); any failure is a ConfigError
 *   2. Normalise each rule expression; failures become PolicyWarnings and the
 *      policy is kept with an empty expression (it can never match)
 *   3. Assign PolicyIDs in definition order (load order is the tie-breaker)
 *   4. Freeze the union of referenced field names into a FieldSet
 *
 * Normalisation de-duplicates values within a field, keeping first-seen order.
 * A field whose list contains any non-scalar value is rejected as a whole: a
 * partially-applied field would silently widen or narrow the rule.
 */

// FieldSet is an immutable set of field names.
// Names are kept sorted for deterministic iteration and logging.
type FieldSet struct {
	names []string
	set   map[string]struct{}
}

// NewFieldSet builds a FieldSet from names; duplicates are ignored.
func NewFieldSet(names ...string) FieldSet {
	set := make(map[string]struct{}, len(names))
	sorted := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := set[n]; ok {
			continue
		}
		set[n] = struct{}{}
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	return FieldSet{names: sorted, set: set}
}

// Contains reports whether name is in the set.
func (s FieldSet) Contains(name string) bool {
	_, ok := s.set[name]
	return ok
}

// Len returns the number of names in the set.
func (s FieldSet) Len() int {
	return len(s.names)
}

// Names returns a sorted copy of the set's names.
func (s FieldSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// PolicyStore is the immutable collection of loaded policies.
// Safe for concurrent reads without coordination.
type PolicyStore struct {
	policies []*types.Policy // indexed by PolicyID
	byName   map[string]*types.Policy
	fields   FieldSet
	warnings []types.PolicyWarning
}

// Load validates definitions and builds a PolicyStore.
// Returns *types.ConfigError for empty or duplicate names. Malformed rule
// expressions are recorded as warnings and do not fail the load.
// A nil or empty definition list is legal and yields an empty store.
func Load(defs []types.PolicyDefinition) (*PolicyStore, error) {
	store := &PolicyStore{
		policies: make([]*types.Policy, 0, len(defs)),
		byName:   make(map[string]*types.Policy, len(defs)),
	}

	var fieldNames []string

	for i, def := range defs {
		if def.Name == "" {
			return nil, types.NewConfigError("definitions",
				fmt.Sprintf("policy at position %d", i), types.ErrEmptyPolicyName)
		}
		if len(def.Name) > types.MaxPolicyNameLength {
			return nil, types.NewConfigError("definitions",
				fmt.Sprintf("policy at position %d", i), types.ErrPolicyNameTooLong)
		}
		if _, exists := store.byName[def.Name]; exists {
			return nil, types.NewConfigError("definitions",
				fmt.Sprintf("policy %q", def.Name), types.ErrDuplicatePolicy)
		}

		expr, warnings := normalizeExpression(def.Name, def.RulesExpr)
		store.warnings = append(store.warnings, warnings...)

		policy := &types.Policy{
			ID:       types.PolicyID(i),
			Name:     def.Name,
			Priority: def.Priority,
			Rules:    expr,
			Config:   copyConfig(def.Config),
		}
		store.policies = append(store.policies, policy)
		store.byName[policy.Name] = policy

		for field := range expr {
			fieldNames = append(fieldNames, field)
		}
	}

	store.fields = NewFieldSet(fieldNames...)
	return store, nil
}

// All returns the loaded policies in load order.
// The returned slice is a copy; the policies themselves must not be modified.
func (s *PolicyStore) All() []*types.Policy {
	out := make([]*types.Policy, len(s.policies))
	copy(out, s.policies)
	return out
}

// ByName returns the policy with the given name.
func (s *PolicyStore) ByName(name string) (*types.Policy, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// ByID returns the policy with the given load ordinal.
func (s *PolicyStore) ByID(id types.PolicyID) (*types.Policy, bool) {
	if int(id) >= len(s.policies) {
		return nil, false
	}
	return s.policies[id], true
}

// ReferencedFieldNames returns the union of field names across all rule expressions.
func (s *PolicyStore) ReferencedFieldNames() FieldSet {
	return s.fields
}

// Warnings returns the per-policy diagnostics recorded during Load.
func (s *PolicyStore) Warnings() []types.PolicyWarning {
	out := make([]types.PolicyWarning, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Len returns the number of loaded policies, matchable or not.
func (s *PolicyStore) Len() int {
	return len(s.policies)
}

// normalizeExpression converts a raw decoded rule expression into a RuleExpression.
// Any problem empties the whole expression; the policy is kept but never matches.
func normalizeExpression(policy string, raw any) (types.RuleExpression, []types.PolicyWarning) {
	if raw == nil {
		return types.RuleExpression{}, []types.PolicyWarning{{
			Policy: policy,
			Reason: types.ErrEmptyExpression.Error(),
		}}
	}

	fields, ok := asFieldMap(raw)
	if !ok {
		return types.RuleExpression{}, []types.PolicyWarning{{
			Policy: policy,
			Reason: fmt.Sprintf("rule expression must be a mapping, got %T", raw),
		}}
	}
	if len(fields) == 0 {
		return types.RuleExpression{}, []types.PolicyWarning{{
			Policy: policy,
			Reason: types.ErrEmptyExpression.Error(),
		}}
	}

	// Sorted field order keeps the reported warning deterministic.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	expr := make(types.RuleExpression, len(fields))
	for _, name := range names {
		values, reason := normalizeValues(fields[name])
		if reason != "" {
			return types.RuleExpression{}, []types.PolicyWarning{{
				Policy: policy,
				Field:  name,
				Reason: reason,
			}}
		}
		expr[name] = values
	}
	return expr, nil
}

// asFieldMap accepts the mapping shapes produced by the JSON and YAML decoders
// and by callers building definitions in Go.
func asFieldMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[string][]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	case types.RuleExpression:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// normalizeValues canonicalises a field's allowed values.
// Returns a non-empty reason when the list is unusable.
func normalizeValues(raw any) ([]string, string) {
	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case []string:
		list = make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
	default:
		return nil, fmt.Sprintf("allowed values must be a list, got %T", raw)
	}

	if len(list) == 0 {
		return nil, "allowed values list is empty"
	}

	seen := make(map[string]struct{}, len(list))
	values := make([]string, 0, len(list))
	for i, elem := range list {
		text, ok := Canonical(elem)
		if !ok {
			return nil, fmt.Sprintf("value at index %d is not a scalar (%T)", i, elem)
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		values = append(values, text)
	}
	return values, ""
}

// copyConfig detaches the stored config from the caller's definition.
// Metadata is deep-copied into plain JSON values (see jsonValue).
func copyConfig(cfg types.PolicyConfig) types.PolicyConfig {
	out := types.PolicyConfig{URL: cfg.URL}
	if len(cfg.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(cfg.Metadata))
		for k, v := range cfg.Metadata {
			out.Metadata[k] = jsonValue(v)
		}
	}
	return out
}

// jsonValue copies an opaque decoded value into the JSON value space:
// nil, string, bool, json.Number, []any and map[string]any. Go numeric kinds
// become json.Number; YAML mappings with non-string keys get string keys;
// anything else (YAML timestamps, for example) becomes its text form.
func jsonValue(v any) any {
	switch v := v.(type) {
	case nil, string, bool, json.Number:
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = jsonValue(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[fmt.Sprint(k)] = jsonValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = jsonValue(e)
		}
		return out
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
	}
	if text, ok := Canonical(v); ok {
		return json.Number(text)
	}
	return fmt.Sprint(v)
}
