// Package types provides domain models shared across policyrouter components.
//
// Types here are wire-format agnostic: policy sources decode into PolicyDefinition,
// transports convert their request shapes into plain attribute maps. The rules
// package consumes these types and never imports a transport or storage package.
package types

import "encoding/json"

// PolicyID identifies a loaded policy by its load ordinal (0-based).
// Lower IDs were loaded first; used as the stable tie-breaker between
// policies with equal priority.
type PolicyID uint32

// EvaluationID represents a UUIDv7 evaluation identifier.
// String alias enables type safety while maintaining JSON string serialization.
type EvaluationID string

// Payload represents an arbitrary JSON request body.
// json.RawMessage wrapper preserves original bytes until projection.
type Payload json.RawMessage

// MarshalJSON implements json.Marshaler.
// Delegates to json.RawMessage to preserve original payload bytes unchanged.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.RawMessage(p).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
// Delegates to json.RawMessage to capture raw bytes without parsing.
func (p *Payload) UnmarshalJSON(data []byte) error {
	return (*json.RawMessage)(p).UnmarshalJSON(data)
}

// Event is a projected event: only fields referenced by some loaded policy,
// with values in canonical text form. Owned by a single evaluation.
type Event map[string]string

// Resource limits enforced at the transport boundary.
const (
	// MaxPayloadSize limits an evaluation request body.
	// 1MB is far beyond any flat attribute map a caller should send.
	MaxPayloadSize = 1024 * 1024

	// MaxPolicyNameLength bounds policy names so they stay usable as metric labels.
	MaxPolicyNameLength = 256
)
