package integration_test

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"gridsweep/integration/harness"
)

func TestQueueSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := harness.Fixture(t, "workspace-min")
	runDir := t.TempDir()

	res := harness.MustRun(t, binPath, runDir, "run", "--workspace", workspace, "sweeps/queued.yml")
	if !strings.Contains(res.Stdout, "Sweep queued: detached") {
		t.Fatalf("expected detached sweep\n%s", res.Output())
	}

	queuePath := filepath.Join(workspace, "audit", "queue.sqlite")
	if got := countTasks(t, queuePath, "queued"); got != 4 {
		t.Fatalf("queued tasks = %d, want 4", got)
	}

	worker := harness.MustRun(t, binPath, runDir, "worker", "--workspace", workspace, "--drain", "sweeps/queued.yml")
	if !strings.Contains(worker.Stdout, "Executed 4 tasks") {
		t.Fatalf("unexpected worker output\n%s", worker.Output())
	}
	if got := countTasks(t, queuePath, "succeeded"); got != 4 {
		t.Fatalf("succeeded tasks = %d, want 4", got)
	}

	status := harness.MustRun(t, binPath, runDir, "status", "--workspace", workspace)
	if !strings.Contains(status.Stdout, "succeeded") {
		t.Fatalf("status should show queue counts\n%s", status.Output())
	}

	requireAuditEvents(t, filepath.Join(workspace, "audit", "audit.sqlite"), []string{
		"sweep_run_started",
		"batch_submitted",
		"worker_started",
		"worker_finished",
	})
}

func countTasks(t *testing.T, dbPath, state string) int {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open queue db: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sweep_tasks WHERE state = ?", state).Scan(&n); err != nil {
		t.Fatalf("count %s tasks: %v", state, err)
	}
	return n
}
