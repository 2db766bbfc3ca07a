// internal/rules/index.go
package rules

import (
	"github.com/solatis/policyrouter/internal/types"
)

/*
 * Field index.
 *
 * Maps (field, value) to the policies that list value as allowed for field.
 * Exact-match only, so hash buckets are sufficient: no trie or automaton.
 *
 * Buckets hold PolicyIDs in ascending order. Policies are visited in load order
 * during the build, so each append keeps the bucket sorted without a sort pass,
 * and rebuilding from the same store yields identical buckets.
 *
 * The index is a pure function of the store and immutable after BuildIndex.
 */

// bucketKey addresses one (field, value) bucket.
type bucketKey struct {
	field string
	value string
}

// FieldIndex is the derived lookup structure over a PolicyStore.
type FieldIndex struct {
	fields  FieldSet
	buckets map[bucketKey][]types.PolicyID
}

// BuildIndex derives a FieldIndex from store.
// Policies with empty rule expressions contribute no entries.
func BuildIndex(store *PolicyStore) *FieldIndex {
	idx := &FieldIndex{
		fields:  store.ReferencedFieldNames(),
		buckets: make(map[bucketKey][]types.PolicyID),
	}

	for _, p := range store.policies {
		for field, values := range p.Rules {
			for _, v := range values {
				key := bucketKey{field: field, value: v}
				idx.buckets[key] = append(idx.buckets[key], p.ID)
			}
		}
	}

	return idx
}

// Candidates returns the policies allowing value for field, in load order.
// Returns an empty slice when no bucket exists. The slice is a copy.
func (ix *FieldIndex) Candidates(field, value string) []types.PolicyID {
	bucket := ix.bucket(field, value)
	out := make([]types.PolicyID, len(bucket))
	copy(out, bucket)
	return out
}

// bucket returns the shared bucket slice; callers must not modify it.
func (ix *FieldIndex) bucket(field, value string) []types.PolicyID {
	return ix.buckets[bucketKey{field: field, value: value}]
}

// FieldNames returns the set of field names referenced by any policy.
func (ix *FieldIndex) FieldNames() FieldSet {
	return ix.fields
}

// Buckets returns the number of (field, value) buckets.
func (ix *FieldIndex) Buckets() int {
	return len(ix.buckets)
}

// Equal reports whether two indexes have identical field sets and buckets.
func (ix *FieldIndex) Equal(other *FieldIndex) bool {
	if other == nil {
		return false
	}
	if len(ix.buckets) != len(other.buckets) {
		return false
	}
	if ix.fields.Len() != other.fields.Len() {
		return false
	}
	for _, name := range ix.fields.names {
		if !other.fields.Contains(name) {
			return false
		}
	}
	for key, ids := range ix.buckets {
		otherIDs, ok := other.buckets[key]
		if !ok || len(otherIDs) != len(ids) {
			return false
		}
		for i := range ids {
			if ids[i] != otherIDs[i] {
				return false
			}
		}
	}
	return true
}
