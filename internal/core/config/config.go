// Package config provides configuration management for policyrouter services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Policy source kinds.
const (
	SourceFile     = "file"
	SourceDatabase = "database"
)

// RouterAPIConfig holds configuration for the gRPC and HTTP evaluation APIs.
type RouterAPIConfig struct {
	Host           string
	Port           int // gRPC
	HTTPPort       int // 0 disables the HTTP listener
	MaxConnections int
	RequestTimeout time.Duration
	RateLimitRPS   int // 0 disables rate limiting
	RateLimitBurst int
}

// PoliciesConfig selects and tunes the policy source.
type PoliciesConfig struct {
	Source   string // "file" or "database"
	Path     string // policy file or directory for the file source
	Watch    bool   // reload on file change
	Debounce time.Duration
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Config is the complete service configuration.
type Config struct {
	RouterAPI RouterAPIConfig
	Policies  PoliciesConfig
	Log       LogConfig
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		RouterAPI: RouterAPIConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			HTTPPort:       8080,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
			RateLimitRPS:   0,
			RateLimitBurst: 100,
		},
		Policies: PoliciesConfig{
			Source:   SourceFile,
			Path:     "./policies.json",
			Watch:    false,
			Debounce: 250 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports PR_HMAC_SECRET (single) and PR_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are 32 hex chars matching the API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("PR_HMAC_SECRET"); val != "" {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("PR_HMAC_SECRET: %w", err)
		}
		secrets[secretID] = decoded
	}

	// Multiple secrets enable rotation: old and new keys valid during migration
	for i := 1; ; i++ {
		key := fmt.Sprintf("PR_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return nil, fmt.Errorf("duplicate secret_id '%s' found in environment variables (check PR_HMAC_SECRET and PR_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars.
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars")
	}

	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
