package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	testSecretA = "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	testSecretB = "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	testSecretC = "0123456789abcdef0123456789abcdef:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
)

func clearSecrets(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PR_HMAC_SECRET", "PR_HMAC_SECRET_1", "PR_HMAC_SECRET_2"} {
		t.Setenv(k, "")
	}
}

func TestHMACSecrets(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		clearSecrets(t)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 0 {
			t.Errorf("expected 0 secrets, got %d", len(secrets))
		}
	})

	t.Run("single secret", func(t *testing.T) {
		clearSecrets(t)
		t.Setenv("PR_HMAC_SECRET", testSecretA)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		clearSecrets(t)
		t.Setenv("PR_HMAC_SECRET_1", testSecretA)
		t.Setenv("PR_HMAC_SECRET_2", testSecretB)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		clearSecrets(t)
		t.Setenv("PR_HMAC_SECRET", "invalid_format")

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for invalid format")
		}
	})

	t.Run("duplicate secret_id in numbered secrets", func(t *testing.T) {
		clearSecrets(t)
		t.Setenv("PR_HMAC_SECRET_1", testSecretA)
		t.Setenv("PR_HMAC_SECRET_2", testSecretC)

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for duplicate secret_id")
		}
	})

	t.Run("duplicate secret_id between single and numbered", func(t *testing.T) {
		clearSecrets(t)
		t.Setenv("PR_HMAC_SECRET", testSecretA)
		t.Setenv("PR_HMAC_SECRET_1", testSecretC)

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for duplicate secret_id between PR_HMAC_SECRET and PR_HMAC_SECRET_1")
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RouterAPI.Host != "0.0.0.0" {
			t.Errorf("expected host 0.0.0.0, got %s", cfg.RouterAPI.Host)
		}
		if cfg.RouterAPI.Port != 50051 {
			t.Errorf("expected port 50051, got %d", cfg.RouterAPI.Port)
		}
		if cfg.RouterAPI.HTTPPort != 8080 {
			t.Errorf("expected http_port 8080, got %d", cfg.RouterAPI.HTTPPort)
		}
		if cfg.RouterAPI.MaxConnections != 1000 {
			t.Errorf("expected max_connections 1000, got %d", cfg.RouterAPI.MaxConnections)
		}
		if cfg.RouterAPI.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.RouterAPI.RequestTimeout)
		}
		if cfg.RouterAPI.RateLimitRPS != 0 {
			t.Errorf("expected rate limiting disabled, got %d rps", cfg.RouterAPI.RateLimitRPS)
		}
		if cfg.Policies.Source != SourceFile {
			t.Errorf("expected policy source file, got %s", cfg.Policies.Source)
		}
		if cfg.Policies.Path != "./policies.json" {
			t.Errorf("expected policies path ./policies.json, got %s", cfg.Policies.Path)
		}
		if cfg.Policies.Debounce != 250*time.Millisecond {
			t.Errorf("expected debounce 250ms, got %v", cfg.Policies.Debounce)
		}
		if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
			t.Errorf("expected log info/json, got %s/%s", cfg.Log.Level, cfg.Log.Format)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("PR_ROUTER_API_PORT", "9999")
		t.Setenv("PR_ROUTER_API_HOST", "127.0.0.1")
		t.Setenv("PR_POLICIES_WATCH", "true")
		t.Setenv("PR_LOG_LEVEL", "DEBUG")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RouterAPI.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.RouterAPI.Port)
		}
		if cfg.RouterAPI.Host != "127.0.0.1" {
			t.Errorf("expected host 127.0.0.1, got %s", cfg.RouterAPI.Host)
		}
		if !cfg.Policies.Watch {
			t.Error("expected policies.watch true")
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("expected log level debug, got %s", cfg.Log.Level)
		}
	})

	t.Run("invalid port range", func(t *testing.T) {
		t.Setenv("PR_ROUTER_API_PORT", "70000")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for port > 65535")
		}
	})

	t.Run("invalid negative values", func(t *testing.T) {
		t.Setenv("PR_ROUTER_API_MAX_CONNECTIONS", "-1")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for negative max_connections")
		}
	})

	t.Run("port collision", func(t *testing.T) {
		t.Setenv("PR_ROUTER_API_PORT", "8080")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error when gRPC and HTTP ports collide")
		}
	})

	t.Run("http port zero disables http", func(t *testing.T) {
		t.Setenv("PR_ROUTER_API_HTTP_PORT", "0")
		t.Setenv("PR_ROUTER_API_PORT", "8080")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RouterAPI.HTTPPort != 0 {
			t.Errorf("expected http_port 0, got %d", cfg.RouterAPI.HTTPPort)
		}
	})

	t.Run("unknown policy source", func(t *testing.T) {
		t.Setenv("PR_POLICIES_SOURCE", "s3")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for unknown policy source")
		}
	})

	t.Run("watch requires file source", func(t *testing.T) {
		t.Setenv("PR_POLICIES_SOURCE", "database")
		t.Setenv("PR_POLICIES_WATCH", "true")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for watch with database source")
		}
	})

	t.Run("unknown log format", func(t *testing.T) {
		t.Setenv("PR_LOG_FORMAT", "xml")

		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for unknown log format")
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("config file values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `router_api:
  port: 6000
  rate_limit_rps: 50
  rate_limit_burst: 10
policies:
  path: /etc/policyrouter/policies.yaml
  debounce: 1s
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.RouterAPI.Port != 6000 {
			t.Errorf("expected port 6000, got %d", cfg.RouterAPI.Port)
		}
		if cfg.RouterAPI.RateLimitRPS != 50 || cfg.RouterAPI.RateLimitBurst != 10 {
			t.Errorf("expected rate limit 50/10, got %d/%d", cfg.RouterAPI.RateLimitRPS, cfg.RouterAPI.RateLimitBurst)
		}
		if cfg.Policies.Path != "/etc/policyrouter/policies.yaml" {
			t.Errorf("unexpected policies path %s", cfg.Policies.Path)
		}
		if cfg.Policies.Debounce != time.Second {
			t.Errorf("expected debounce 1s, got %v", cfg.Policies.Debounce)
		}
	})
}

func TestParseHMACSecretWithID(t *testing.T) {
	t.Run("valid format", func(t *testing.T) {
		secretID, secret, err := ParseHMACSecretWithID(testSecretA)
		if err != nil {
			t.Fatalf("ParseHMACSecretWithID failed: %v", err)
		}
		if secretID != "0123456789abcdef0123456789abcdef" {
			t.Errorf("unexpected secret_id: %s", secretID)
		}
		if len(secret) < 32 {
			t.Errorf("secret too short: %d bytes", len(secret))
		}
	})

	t.Run("missing colon", func(t *testing.T) {
		if _, _, err := ParseHMACSecretWithID("0123456789abcdef0123456789abcdef"); err == nil {
			t.Error("expected error for missing colon")
		}
	})

	t.Run("invalid secret_id length", func(t *testing.T) {
		if _, _, err := ParseHMACSecretWithID("tooshort:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"); err == nil {
			t.Error("expected error for short secret_id")
		}
	})

	t.Run("non-hex chars in secret_id", func(t *testing.T) {
		if _, _, err := ParseHMACSecretWithID("0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"); err == nil {
			t.Error("expected error for non-hex secret_id")
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		if _, _, err := ParseHMACSecretWithID("0123456789abcdef0123456789abcdef:not-valid-base64!!!"); err == nil {
			t.Error("expected error for invalid base64")
		}
	})

	t.Run("secret too short", func(t *testing.T) {
		if _, _, err := ParseHMACSecretWithID("0123456789abcdef0123456789abcdef:c2hvcnQ="); err == nil {
			t.Error("expected error for secret < 32 bytes")
		}
	})
}
