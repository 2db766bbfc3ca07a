// internal/rules/match.go
package rules

import (
	"sort"

	"github.com/solatis/policyrouter/internal/types"
)

/*
 * Policy matching.
 *
 * Evaluates a projected event against the field index with conjunctive
 * semantics across a policy's fields and disjunctive semantics within each
 * field's allowed values.
 *
 * Matching flow:
 *   1. For each (field, value) in the event, read the index bucket
 *   2. Count bucket hits per policy; values are de-duplicated per field at load,
 *      so a policy is hit at most once per field
 *   3. A policy whose hit count equals its field count is a candidate
 *   4. Confirm each candidate with Satisfies (exact per-field check)
 *   5. Sort confirmed policies by priority, then by PolicyID (load order)
 *
 * Cost is O(event fields x bucket size), independent of total policy count.
 *
 * A field required by a policy but absent from the event never produces a
 * bucket hit for that field, so the hit count stays short and the policy is
 * excluded without a separate absence check.
 */

// MatchResult is the ordered set of policies fully satisfied by an event.
type MatchResult struct {
	Matches []*types.Policy // sorted by priority asc, then load order
}

// Matched reports whether at least one policy matched.
func (r MatchResult) Matched() bool {
	return len(r.Matches) > 0
}

// Winner returns the highest-precedence matching policy, or nil.
func (r MatchResult) Winner() *types.Policy {
	if len(r.Matches) == 0 {
		return nil
	}
	return r.Matches[0]
}

// Names returns the matched policy names in result order.
func (r MatchResult) Names() []string {
	names := make([]string, len(r.Matches))
	for i, p := range r.Matches {
		names[i] = p.Name
	}
	return names
}

// Match evaluates event against idx and store.
// An empty event yields an empty result without touching the index.
func Match(idx *FieldIndex, store *PolicyStore, event types.Event) MatchResult {
	if len(event) == 0 {
		return MatchResult{}
	}

	hits := make(map[types.PolicyID]int)
	for field, value := range event {
		for _, id := range idx.bucket(field, value) {
			hits[id]++
		}
	}
	if len(hits) == 0 {
		return MatchResult{}
	}

	matches := make([]*types.Policy, 0, len(hits))
	for id, n := range hits {
		p, ok := store.ByID(id)
		if !ok || n != len(p.Rules) {
			continue
		}
		if !Satisfies(p, event) {
			continue
		}
		matches = append(matches, p)
	}

	// Map iteration order is random; the sort makes the result deterministic.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority < matches[j].Priority
		}
		return matches[i].ID < matches[j].ID
	})

	return MatchResult{Matches: matches}
}

// Satisfies reports whether event fully satisfies p's rule expression.
// A policy with an empty expression is never satisfied.
func Satisfies(p *types.Policy, event types.Event) bool {
	if !p.Matchable() {
		return false
	}
	for field := range p.Rules {
		value, ok := event[field]
		if !ok {
			return false
		}
		if !p.Rules.Allows(field, value) {
			return false
		}
	}
	return true
}
