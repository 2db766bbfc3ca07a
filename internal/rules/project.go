// internal/rules/project.go
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/solatis/policyrouter/internal/types"
)

/*
 * Event projection.
 *
 * Reduces a raw attribute map to the fields some loaded policy references.
 * Only flat scalar values survive: nil, nested objects and arrays are dropped
 * because rule expressions only constrain top-level scalar fields.
 *
 * Iteration is driven by the field set, not the raw event, so projection cost
 * is bounded by the number of referenced fields regardless of event size.
 *
 * ProjectJSON decodes with UseNumber so that integer literals keep their exact
 * digits instead of passing through float64.
 */

// Project copies the scalar values of fields in names from raw.
func Project(raw map[string]any, names FieldSet) types.Event {
	event := make(types.Event, names.Len())
	if len(raw) == 0 {
		return event
	}

	for _, name := range names.names {
		value, ok := raw[name]
		if !ok || value == nil {
			continue
		}
		text, ok := Canonical(value)
		if !ok {
			continue
		}
		event[name] = text
	}
	return event
}

// ProjectJSON decodes payload as a flat JSON object and projects it.
// Returns types.ErrEventNotObject when payload is not a JSON object.
func ProjectJSON(payload json.RawMessage, names FieldSet) (types.Event, error) {
	raw, err := DecodeObject(payload)
	if err != nil {
		return nil, err
	}
	return Project(raw, names), nil
}

// DecodeObject decodes payload into a generic attribute map.
// Returns types.ErrEventNotObject for anything other than a single JSON object.
func DecodeObject(payload []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, types.ErrEventNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, types.ErrEventNotObject
	}
	// Anything after the object, including a stray closing delimiter, means
	// the payload is not a single mapping.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, types.ErrEventNotObject
	}
	return raw, nil
}
