package harness

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

// BinEnv points the harness at a prebuilt gridsweep binary.
const BinEnv = "GRIDSWEEP_TEST_BIN"

var (
	buildOnce sync.Once
	buildPath string
	buildErr  error
)

// RepoRoot returns the root of the module, located from this source file.
func RepoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("resolve repo root: runtime.Caller failed")
	}
	root := filepath.Dir(filepath.Dir(filepath.Dir(file)))
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("resolve repo root: %v", err)
	}
	return root
}

// BuildBinary returns the gridsweep CLI, building it once per test run
// unless GRIDSWEEP_TEST_BIN names an existing binary.
func BuildBinary(t *testing.T) string {
	t.Helper()
	if prebuilt := os.Getenv(BinEnv); prebuilt != "" {
		if _, err := os.Stat(prebuilt); err != nil {
			t.Fatalf("%s: %v", BinEnv, err)
		}
		return prebuilt
	}

	root := RepoRoot(t)
	buildOnce.Do(func() {
		buildPath, buildErr = build(root)
	})
	if buildErr != nil {
		t.Fatalf("build gridsweep binary: %v", buildErr)
	}
	return buildPath
}

func build(root string) (string, error) {
	dir, err := os.MkdirTemp("", "gridsweep-bin-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	out := filepath.Join(dir, "gridsweep")
	cmd := exec.Command("go", "build", "-o", out, "./cmd/gridsweep")
	cmd.Dir = root
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("go build failed: %w\n%s", err, output)
	}
	return out, nil
}
