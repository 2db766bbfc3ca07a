// internal/rules/scalar_test.go
package rules

import (
	"encoding/json"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   string
		wantOK bool
	}{
		{"string", "online", "online", true},
		{"empty string", "", "", true},
		{"bool true", true, "true", true},
		{"bool false", false, "false", true},
		{"int", 42, "42", true},
		{"negative int64", int64(-7), "-7", true},
		{"uint8", uint8(255), "255", true},
		{"integral float", float64(2), "2", true},
		{"fractional float", 2.5, "2.5", true},
		{"float32", float32(0.5), "0.5", true},
		{"json number int", json.Number("10"), "10", true},
		{"json number float", json.Number("1.50"), "1.5", true},
		{"json number integral float", json.Number("3.0"), "3", true},
		{"json number invalid", json.Number("abc"), "", false},
		{"json number beyond int64", json.Number("12345678901234567891"), "12345678901234567891", true},
		{"json number negative beyond int64", json.Number("-98765432109876543210"), "-98765432109876543210", true},
		{"json number exponent", json.Number("1e2"), "100", true},
		{"uint64 max", uint64(18446744073709551615), "18446744073709551615", true},
		{"nil", nil, "", false},
		{"map", map[string]any{"id": "1"}, "", false},
		{"slice", []any{"a"}, "", false},
		{"struct", struct{}{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Canonical(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("Canonical(%v) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Canonical(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestCanonical_NumberFormsAgree(t *testing.T) {
	a, _ := Canonical(float64(2))
	b, _ := Canonical(json.Number("2"))
	c, _ := Canonical(2)
	if a != b || b != c {
		t.Errorf("number forms disagree: float64=%q json.Number=%q int=%q", a, b, c)
	}
}

func TestCanonical_LargeIntegersStayDistinct(t *testing.T) {
	a, _ := Canonical(json.Number("12345678901234567890"))
	b, _ := Canonical(json.Number("12345678901234567891"))
	if a == b {
		t.Errorf("distinct integers collided: %q", a)
	}
	if a != "12345678901234567890" {
		t.Errorf("Canonical() = %q, want 12345678901234567890", a)
	}
}
