// Package policy loads policy definitions from their configured source and
// keeps the active rules engine current.
package policy

import (
	"context"
	"fmt"

	"github.com/solatis/policyrouter/internal/core/db"
	"github.com/solatis/policyrouter/internal/types"
)

// Source produces the full list of policy definitions in load order.
type Source interface {
	Load(ctx context.Context) ([]types.PolicyDefinition, error)
	// Describe names the source in logs.
	Describe() string
}

// PolicyLister is implemented by *db.Queries.
type PolicyLister interface {
	ListPolicies(ctx context.Context) ([]types.PolicyDefinition, error)
}

// DatabaseSource reads the policies table.
type DatabaseSource struct {
	lister PolicyLister
}

var _ PolicyLister = (*db.Queries)(nil)

// NewDatabaseSource creates a source over the given lister.
func NewDatabaseSource(lister PolicyLister) *DatabaseSource {
	return &DatabaseSource{lister: lister}
}

// Load returns the stored definitions ordered by position.
func (s *DatabaseSource) Load(ctx context.Context) ([]types.PolicyDefinition, error) {
	defs, err := s.lister.ListPolicies(ctx)
	if err != nil {
		if types.IsConfigError(err) {
			return nil, err
		}
		return nil, types.NewConfigError("database", "failed to load policies",
			fmt.Errorf("%w: %v", types.ErrSourceUnreadable, err))
	}
	return defs, nil
}

// Describe names the source in logs.
func (s *DatabaseSource) Describe() string {
	return "database"
}
