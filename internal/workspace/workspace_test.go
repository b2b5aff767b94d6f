package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveAndEnsureDirs(t *testing.T) {
	root := t.TempDir()
	ws, err := Resolve(root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := ws.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{ws.SweepsDir, ws.RunsDir, ws.ReportsDir, ws.AuditDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected dir %s: %v", dir, err)
		}
	}
	if ws.AuditDBPath != filepath.Join(root, "audit", "audit.sqlite") {
		t.Fatalf("unexpected audit path %s", ws.AuditDBPath)
	}
}

func TestResolveMissingRoot(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing root")
	}
	if _, err := Resolve("  "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestResolvePath(t *testing.T) {
	ws := New("/ws")
	got, err := ws.ResolvePath("sweeps/a.yml")
	if err != nil || got != "/ws/sweeps/a.yml" {
		t.Fatalf("ResolvePath = %q, %v", got, err)
	}
	got, err = ws.ResolvePath("/abs/x")
	if err != nil || got != "/abs/x" {
		t.Fatalf("ResolvePath abs = %q, %v", got, err)
	}
}

func TestNewRunDir(t *testing.T) {
	ws := New(t.TempDir())
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id, dir, err := ws.NewRunDir("motor sweep", now)
	if err != nil {
		t.Fatalf("NewRunDir: %v", err)
	}
	if id != "motor_sweep-20260102T030405Z" || !strings.HasSuffix(dir, id) {
		t.Fatalf("unexpected run id %s dir %s", id, dir)
	}
}
