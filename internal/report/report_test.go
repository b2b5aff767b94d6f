package report

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridsweep/internal/grid"
	"gridsweep/internal/result"
)

func exampleSweep(t *testing.T) ([]grid.Axis, []grid.Objective, *result.Tensor, []grid.Point) {
	t.Helper()
	axes := []grid.Axis{
		{Name: "x1", Label: "First", Lower: 0, Upper: 1, Steps: 2},
		{Name: "x2", Label: "Second", Lower: 10, Upper: 20, Steps: 2},
	}
	objs := []grid.Objective{{Name: "torque", Label: "Torque / Nm"}}
	domain := grid.Sample(axes)
	points := grid.Expand(domain)
	outcomes := make([]result.Outcome, len(points))
	for k, p := range points {
		outcomes[k] = result.Outcome{p[0] + p[1]}
	}
	outcomes[2] = result.NaNOutcome(1)
	tensor, err := result.Assemble(outcomes, domain)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return axes, objs, tensor, points
}

func TestWriteReport(t *testing.T) {
	axes, objs, tensor, points := exampleSweep(t)
	var buf bytes.Buffer
	if err := Write(&buf, axes, objs, tensor, points); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := strings.Join([]string{
		"First;Second;Torque / Nm;Directory",
		"x1;x2;torque;id",
		"0;10;10;0",
		"0;20;20;1",
		"1;10;nan;2",
		"1;20;21;3",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Fatalf("report mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}

	table, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(table.Rows) != len(points) {
		t.Fatalf("rows = %d, want %d", len(table.Rows), len(points))
	}
	if len(table.Labels) != len(axes)+len(objs)+1 || len(table.Names) != len(axes)+len(objs)+1 {
		t.Fatalf("header widths %d/%d", len(table.Labels), len(table.Names))
	}
	ids, ok := table.Column("id")
	if !ok || ids[3] != "3" {
		t.Fatalf("unexpected id column %v", ids)
	}
}

func TestWriteReportRejectsMismatchedTensor(t *testing.T) {
	axes, objs, tensor, points := exampleSweep(t)
	if err := Write(&bytes.Buffer{}, axes, objs, tensor, points[:3]); err == nil {
		t.Fatalf("expected error for short grid")
	}
	if err := Write(&bytes.Buffer{}, axes, append(objs, grid.Objective{Name: "extra"}), tensor, points); err == nil {
		t.Fatalf("expected error for objective mismatch")
	}
}

func TestCheckDir(t *testing.T) {
	dir := t.TempDir()
	if err := CheckDir(dir); err != nil {
		t.Fatalf("empty dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckDir(dir); !errors.Is(err, ErrDirNotEmpty) {
		t.Fatalf("expected ErrDirNotEmpty, got %v", err)
	}
	if err := CheckDir(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestCopyArtifact(t *testing.T) {
	reportDir := t.TempDir()
	src := filepath.Join(t.TempDir(), "run.bch")
	if err := os.WriteFile(src, []byte("bch"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst, err := CopyArtifact(reportDir, 4, src)
	if err != nil {
		t.Fatalf("CopyArtifact: %v", err)
	}
	if dst != filepath.Join(reportDir, "4", "run.bch") {
		t.Fatalf("dst = %s", dst)
	}

	_, err = CopyArtifact(reportDir, 5, filepath.Join(t.TempDir(), "missing.bch"))
	if !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
	if _, err := os.Stat(ArtifactDir(reportDir, 5)); !os.IsNotExist(err) {
		t.Fatalf("missing artifact must not create a directory")
	}
}

func TestDiff(t *testing.T) {
	same, err := Diff("a;b\n1;2\n", "a;b\n1;2\n", "old", "new")
	if err != nil || same != "" {
		t.Fatalf("identical reports: %q, %v", same, err)
	}
	text, err := Diff("a;b\n1;2\n", "a;b\n1;3\n", "old", "new")
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(text, "-1;2") || !strings.Contains(text, "+1;3") {
		t.Fatalf("unexpected diff:\n%s", text)
	}
}

func TestFormatValue(t *testing.T) {
	if FormatValue(math.NaN()) != "nan" || FormatValue(0.5) != "0.5" || FormatValue(20) != "20" {
		t.Fatalf("unexpected formatting")
	}
}
