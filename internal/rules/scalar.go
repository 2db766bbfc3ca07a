// internal/rules/scalar.go
package rules

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

/*
 * Scalar canonicalisation.
 *
 * Rule values and event values are compared as exact strings. Both sides pass
 * through Canonical so that a rule value written as 2 in YAML and an event value
 * sent as "2" (or 2.0 in JSON) land in the same index bucket.
 *
 * Accepted scalars: string, bool, all Go integer and float kinds, json.Number.
 * Everything else (nil, maps, slices, structs) is not a scalar and is rejected:
 * the projector drops it, the store reports it as a malformed rule value.
 *
 * Float formatting uses the shortest representation ('f', -1) so 2.0 and 2
 * both canonicalise to "2". Integer literals keep their exact digits at any
 * magnitude; only fractions and exponents go through float64.
 */

// Canonical returns the canonical text form of a scalar value.
// ok is false for nil and for non-scalar values.
func Canonical(value any) (text string, ok bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case json.Number:
		return canonicalNumber(string(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	default:
		return "", false
	}
}

// canonicalNumber normalises a json.Number literal.
// Integer literals keep their digits; anything else goes through float formatting.
func canonicalNumber(lit string) (string, bool) {
	if !strings.ContainsAny(lit, ".eE") {
		var n big.Int
		if _, ok := n.SetString(lit, 10); !ok {
			return "", false
		}
		return n.String(), true
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
