package audit

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestLogEventAndRecent(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit", "audit.sqlite"))
	if err := logger.LogEvent("sweep", "sweep_started", map[string]any{"points": 4}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := logger.LogEvent("sweep", "sweep_finished", map[string]any{"status": "complete"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	events, err := logger.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "sweep_finished" || events[1].Type != "sweep_started" {
		t.Fatalf("unexpected order %v / %v", events[0].Type, events[1].Type)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(events[1].Payload), &payload); err != nil {
		t.Fatalf("payload json: %v", err)
	}
	if payload["points"].(float64) != 4 {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestNilLoggerUsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.sqlite")
	t.Setenv("GRIDSWEEP_AUDIT_DB", path)
	var logger *Logger
	if err := logger.LogEvent("cli", "ping", nil); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	events, err := NewLogger(path).Recent(1)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected event in env db, got %v, %v", events, err)
	}
}
