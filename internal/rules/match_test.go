// internal/rules/match_test.go
package rules

import (
	"testing"

	"github.com/solatis/policyrouter/internal/types"
)

func mustIndex(t *testing.T, defs []types.PolicyDefinition) (*PolicyStore, *FieldIndex) {
	t.Helper()
	store, err := Load(defs)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	return store, BuildIndex(store)
}

func TestMatch_Scenarios(t *testing.T) {
	store, idx := mustIndex(t, samplePolicies())

	tests := []struct {
		name       string
		event      types.Event
		wantWinner string
		wantNames  []string
	}{
		{"online web matches Policy1 only", types.Event{"mode": "online", "platform": "web"}, "Policy1", []string{"Policy1"}},
		{"offline mobile matches Policy1", types.Event{"mode": "offline", "platform": "mobile"}, "Policy1", []string{"Policy1"}},
		{"online desktop matches Policy2 only", types.Event{"mode": "online", "platform": "desktop"}, "Policy2", []string{"Policy2"}},
		{"offline desktop matches nothing", types.Event{"mode": "offline", "platform": "desktop"}, "", nil},
		{"missing platform matches nothing", types.Event{"mode": "online"}, "", nil},
		{"unknown value matches nothing", types.Event{"mode": "online", "platform": "tv"}, "", nil},
		{"empty event matches nothing", types.Event{}, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Match(idx, store, tt.event)

			winner := result.Winner()
			switch {
			case tt.wantWinner == "" && winner != nil:
				t.Fatalf("Winner() = %v, want nil", winner.Name)
			case tt.wantWinner != "" && winner == nil:
				t.Fatalf("Winner() = nil, want %v", tt.wantWinner)
			case winner != nil && winner.Name != tt.wantWinner:
				t.Fatalf("Winner() = %v, want %v", winner.Name, tt.wantWinner)
			}

			names := result.Names()
			if len(names) != len(tt.wantNames) {
				t.Fatalf("Names() = %v, want %v", names, tt.wantNames)
			}
			for i := range names {
				if names[i] != tt.wantNames[i] {
					t.Errorf("Names()[%d] = %v, want %v", i, names[i], tt.wantNames[i])
				}
			}
		})
	}
}

func TestMatch_PriorityBeatsLoadOrder(t *testing.T) {
	defs := []types.PolicyDefinition{
		{Name: "low", Priority: 2, RulesExpr: map[string]any{"mode": []any{"online"}}},
		{Name: "high", Priority: 1, RulesExpr: map[string]any{"mode": []any{"online"}}},
	}
	store, idx := mustIndex(t, defs)

	result := Match(idx, store, types.Event{"mode": "online"})
	if result.Winner() == nil || result.Winner().Name != "high" {
		t.Fatalf("Winner() = %v, want high", result.Winner())
	}
	names := result.Names()
	if len(names) != 2 || names[1] != "low" {
		t.Errorf("Names() = %v, want [high low]", names)
	}
}

func TestMatch_EqualPriorityLoadOrderWins(t *testing.T) {
	defs := []types.PolicyDefinition{
		{Name: "first", Priority: 5, RulesExpr: map[string]any{"mode": []any{"online"}}},
		{Name: "second", Priority: 5, RulesExpr: map[string]any{"mode": []any{"online"}}},
		{Name: "third", Priority: 5, RulesExpr: map[string]any{"mode": []any{"online"}}},
	}
	store, idx := mustIndex(t, defs)

	for i := 0; i < 50; i++ {
		result := Match(idx, store, types.Event{"mode": "online"})
		names := result.Names()
		if len(names) != 3 || names[0] != "first" || names[1] != "second" || names[2] != "third" {
			t.Fatalf("run %d: Names() = %v, want [first second third]", i, names)
		}
	}
}

func TestMatch_UnreferencedFieldsAreWildcards(t *testing.T) {
	defs := []types.PolicyDefinition{
		{Name: "mode-only", Priority: 1, RulesExpr: map[string]any{"mode": []any{"online"}}},
		{Name: "mode-platform", Priority: 0, RulesExpr: map[string]any{"mode": []any{"online"}, "platform": []any{"web"}}},
	}
	store, idx := mustIndex(t, defs)

	result := Match(idx, store, types.Event{"mode": "online", "platform": "desktop"})
	names := result.Names()
	if len(names) != 1 || names[0] != "mode-only" {
		t.Errorf("Names() = %v, want [mode-only]", names)
	}

	result = Match(idx, store, types.Event{"mode": "online", "platform": "web"})
	names = result.Names()
	if len(names) != 2 || names[0] != "mode-platform" || names[1] != "mode-only" {
		t.Errorf("Names() = %v, want [mode-platform mode-only]", names)
	}
}

func TestMatch_EmptyExpressionNeverMatches(t *testing.T) {
	defs := []types.PolicyDefinition{
		{Name: "empty", Priority: 0, RulesExpr: map[string]any{}},
		{Name: "real", Priority: 1, RulesExpr: map[string]any{"mode": []any{"online"}}},
	}
	store, idx := mustIndex(t, defs)

	result := Match(idx, store, types.Event{"mode": "online", "platform": "web", "id": "123"})
	names := result.Names()
	if len(names) != 1 || names[0] != "real" {
		t.Errorf("Names() = %v, want [real]", names)
	}
}

func TestSatisfies(t *testing.T) {
	p := &types.Policy{
		Name:  "p",
		Rules: types.RuleExpression{"mode": {"online", "offline"}, "platform": {"web"}},
	}

	tests := []struct {
		name  string
		event types.Event
		want  bool
	}{
		{"all fields allowed", types.Event{"mode": "offline", "platform": "web"}, true},
		{"extra fields ignored", types.Event{"mode": "online", "platform": "web", "id": "1"}, true},
		{"value not allowed", types.Event{"mode": "online", "platform": "mobile"}, false},
		{"field missing", types.Event{"mode": "online"}, false},
		{"empty event", types.Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(p, tt.event); got != tt.want {
				t.Errorf("Satisfies() = %v, want %v", got, tt.want)
			}
		})
	}

	empty := &types.Policy{Name: "empty", Rules: types.RuleExpression{}}
	if Satisfies(empty, types.Event{"mode": "online"}) {
		t.Error("Satisfies(empty expression) = true, want false")
	}
}
