// internal/rules/engine.go
package rules

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/policyrouter/internal/types"
)

/*
 * Engine orchestration.
 *
 * Engine bundles one PolicyStore with the FieldIndex derived from it. It is
 * built once per (re)load and never mutated, so any number of goroutines may
 * call Evaluate concurrently. A reload builds a new Engine; callers swap the
 * pointer (see internal/core/policy.Registry).
 *
 * Evaluation flow:
 *   1. Project the raw attributes onto the index's field set
 *   2. Empty projection: return OutcomeEmptyProjection, no index lookups
 *   3. Match against the index
 *   4. Winner is the first match (OutcomeMatched), else OutcomeNoMatch
 *
 * Version is a content hash of the loaded policy set, used as an ETag by the
 * transports and in reload logs to tell whether anything actually changed.
 */

// Outcome classifies an evaluation.
type Outcome int

const (
	OutcomeNoMatch Outcome = iota
	OutcomeMatched
	OutcomeEmptyProjection
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeEmptyProjection:
		return "empty_projection"
	default:
		return "no_match"
	}
}

// Decision is the outcome of evaluating one event.
type Decision struct {
	Outcome   Outcome
	Projected types.Event
	Result    MatchResult
}

// Policy returns the winning policy, or nil when nothing matched.
func (d Decision) Policy() *types.Policy {
	return d.Result.Winner()
}

// Engine is an immutable policy store plus its field index.
type Engine struct {
	store    *PolicyStore
	index    *FieldIndex
	version  string
	loadedAt time.Time
}

// NewEngine loads definitions and builds the field index.
// Returns the Load error unchanged (a *types.ConfigError).
func NewEngine(defs []types.PolicyDefinition) (*Engine, error) {
	store, err := Load(defs)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:    store,
		index:    BuildIndex(store),
		version:  computeVersion(store),
		loadedAt: time.Now().UTC(),
	}, nil
}

// Evaluate projects raw attributes and matches them. Never fails: a nil or
// irrelevant event is an empty projection, not an error.
func (e *Engine) Evaluate(raw map[string]any) Decision {
	return e.EvaluateProjected(Project(raw, e.index.FieldNames()))
}

// EvaluateJSON decodes payload as a flat JSON object and evaluates it.
// Returns types.ErrEventNotObject when payload is not an object.
func (e *Engine) EvaluateJSON(payload json.RawMessage) (Decision, error) {
	event, err := ProjectJSON(payload, e.index.FieldNames())
	if err != nil {
		return Decision{}, err
	}
	return e.EvaluateProjected(event), nil
}

// EvaluateProjected matches an already-projected event.
func (e *Engine) EvaluateProjected(event types.Event) Decision {
	if len(event) == 0 {
		return Decision{Outcome: OutcomeEmptyProjection, Projected: event}
	}

	result := Match(e.index, e.store, event)
	outcome := OutcomeNoMatch
	if result.Matched() {
		outcome = OutcomeMatched
	}
	return Decision{Outcome: outcome, Projected: event, Result: result}
}

// Store returns the engine's policy store.
func (e *Engine) Store() *PolicyStore {
	return e.store
}

// Index returns the engine's field index.
func (e *Engine) Index() *FieldIndex {
	return e.index
}

// Version returns the content hash of the loaded policy set.
func (e *Engine) Version() string {
	return e.version
}

// LoadedAt returns when the engine was built.
func (e *Engine) LoadedAt() time.Time {
	return e.loadedAt
}

// computeVersion hashes every policy in load order with sorted fields and values
// kept in stored order. Same definitions always produce the same version.
func computeVersion(store *PolicyStore) string {
	h := sha256.New()
	for _, p := range store.policies {
		var b strings.Builder
		b.WriteString(p.Name)
		b.WriteByte(0)
		b.WriteString(strconv.Itoa(p.Priority))
		b.WriteByte(0)
		b.WriteString(p.Config.URL)
		b.WriteByte(0)

		fields := make([]string, 0, len(p.Rules))
		for f := range p.Rules {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			b.WriteString(f)
			b.WriteByte('=')
			b.WriteString(strings.Join(p.Rules[f], "\x1f"))
			b.WriteByte(0)
		}

		// Metadata holds only JSON values (copyConfig); json.Marshal sorts map
		// keys at every level, so the encoding is canonical.
		if len(p.Config.Metadata) > 0 {
			meta, err := json.Marshal(p.Config.Metadata)
			if err == nil {
				b.Write(meta)
			}
		}
		b.WriteByte(0)
		b.WriteByte('\n')
		h.Write([]byte(b.String()))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
