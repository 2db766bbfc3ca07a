package types

import "github.com/google/uuid"

// NewEvaluationID generates a UUIDv7 evaluation identifier.
// Time-ordered IDs keep log lines for one burst of traffic adjacent when sorted.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewEvaluationID() EvaluationID {
	return EvaluationID(uuid.Must(uuid.NewV7()).String())
}

// ParseEvaluationID validates and converts a string to EvaluationID.
// Caller-supplied correlation IDs go through here so malformed values never reach logs.
func ParseEvaluationID(s string) (EvaluationID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return EvaluationID(s), nil
}
