package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("info", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("policy set loaded", zap.Int("policies", 2))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1 (debug filtered): %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "policy set loaded" {
		t.Errorf("message = %v, want %q", entry["message"], "policy set loaded")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["policies"] != float64(2) {
		t.Errorf("policies = %v, want 2", entry["policies"])
	}
}

func TestNewWithWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("debug", "console", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	logger.Debug("reloading")
	_ = logger.Sync()

	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "reloading") {
		t.Errorf("console output = %q, want DEBUG level and message", buf.String())
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext on empty context returned nil")
	}

	logger := zap.NewExample()
	ctx := WithContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Errorf("FromContext = %p, want %p", got, logger)
	}
}
