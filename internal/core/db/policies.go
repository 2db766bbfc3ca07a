package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solatis/policyrouter/internal/types"
)

// PolicyRecord is one row of the policies table.
type PolicyRecord struct {
	Name      string    `db:"name"`
	Position  int       `db:"position"`
	Priority  int       `db:"priority"`
	RulesExpr string    `db:"rules_expr"`
	Config    string    `db:"config"`
	CreatedAt time.Time `db:"created_at"`
}

// ListPolicies returns every stored policy definition in position order.
// A row whose JSON columns cannot be decoded fails the whole read with a
// *types.ConfigError wrapping types.ErrSourceMalformed.
func (q *Queries) ListPolicies(ctx context.Context) ([]types.PolicyDefinition, error) {
	var rows []PolicyRecord
	if err := q.SelectContext(ctx, "list-policies", &rows); err != nil {
		return nil, types.NewConfigError("database", "failed to list policies",
			fmt.Errorf("%w: %v", types.ErrSourceUnreadable, err))
	}

	defs := make([]types.PolicyDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := row.Definition()
		if err != nil {
			return nil, types.NewConfigError("database", fmt.Sprintf("policy %q", row.Name), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// CountPolicies returns the number of stored policies.
func (q *Queries) CountPolicies(ctx context.Context) (int, error) {
	var n int
	if err := q.GetContext(ctx, "count-policies", &n); err != nil {
		return 0, fmt.Errorf("failed to count policies: %w", err)
	}
	return n, nil
}

// ReplacePolicies atomically replaces the stored policy set with defs.
// Position follows slice order so a later read preserves load order.
func (q *Queries) ReplacePolicies(ctx context.Context, defs []types.PolicyDefinition) error {
	records := make([]PolicyRecord, 0, len(defs))
	now := time.Now().UTC()
	for i, def := range defs {
		rec, err := NewPolicyRecord(i, def, now)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	return q.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "delete-policies"); err != nil {
			return fmt.Errorf("failed to clear policies: %w", err)
		}
		for _, rec := range records {
			if _, err := tx.ExecContext(ctx, "insert-policy",
				rec.Name, rec.Position, rec.Priority, rec.RulesExpr, rec.Config, rec.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert policy %q: %w", rec.Name, err)
			}
		}
		return nil
	})
}

// NewPolicyRecord encodes def for storage at position.
func NewPolicyRecord(position int, def types.PolicyDefinition, createdAt time.Time) (PolicyRecord, error) {
	rules, err := json.Marshal(def.RulesExpr)
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("failed to encode rule expression for %q: %w", def.Name, err)
	}
	cfg, err := json.Marshal(def.Config)
	if err != nil {
		return PolicyRecord{}, fmt.Errorf("failed to encode config for %q: %w", def.Name, err)
	}
	return PolicyRecord{
		Name:      def.Name,
		Position:  position,
		Priority:  def.Priority,
		RulesExpr: string(rules),
		Config:    string(cfg),
		CreatedAt: createdAt,
	}, nil
}

// Definition decodes the record's JSON columns.
func (r PolicyRecord) Definition() (types.PolicyDefinition, error) {
	def := types.PolicyDefinition{Name: r.Name, Priority: r.Priority}

	dec := json.NewDecoder(bytes.NewReader([]byte(r.RulesExpr)))
	dec.UseNumber()
	if err := dec.Decode(&def.RulesExpr); err != nil {
		return types.PolicyDefinition{}, fmt.Errorf("%w: rules_expr: %v", types.ErrSourceMalformed, err)
	}

	if r.Config != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(r.Config)))
		dec.UseNumber()
		if err := dec.Decode(&def.Config); err != nil {
			return types.PolicyDefinition{}, fmt.Errorf("%w: config: %v", types.ErrSourceMalformed, err)
		}
	}
	return def, nil
}
