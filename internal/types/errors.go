package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for policyrouter operations.
var (
	// ErrSourceUnreadable indicates the policy source could not be read.
	ErrSourceUnreadable = errors.New("policy source unreadable")

	// ErrSourceMalformed indicates the policy source could not be parsed into policy records.
	ErrSourceMalformed = errors.New("policy source malformed")

	// ErrDuplicatePolicy indicates two policies share a name.
	ErrDuplicatePolicy = errors.New("duplicate policy name")

	// ErrEmptyPolicyName indicates a policy record without a name.
	ErrEmptyPolicyName = errors.New("policy name is empty")

	// ErrPolicyNameTooLong indicates a policy name exceeds MaxPolicyNameLength.
	ErrPolicyNameTooLong = errors.New("policy name too long")

	// ErrEmptyExpression indicates a policy has no usable rule expression.
	ErrEmptyExpression = errors.New("rule expression is empty")

	// ErrEventNotObject indicates an evaluation payload is not a flat mapping.
	ErrEventNotObject = errors.New("event is not an object")

	// ErrPayloadTooLarge indicates the evaluation payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)

// ConfigError is a fatal startup-time configuration failure.
// Wraps one of the sentinel errors above so callers can use errors.Is.
type ConfigError struct {
	Source  string // file path, database URL scheme, or "definitions"
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("config error in %s: %s", e.Source, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a ConfigError wrapping cause.
func NewConfigError(source, message string, cause error) *ConfigError {
	return &ConfigError{Source: source, Message: message, Cause: cause}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
