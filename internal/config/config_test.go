package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gridsweep/internal/grid"
)

const yamlSweep = `name: demo
batch_size: 4
report_dir: reports/demo
axes:
  - name: x1
    label: First
    lower: 0
    upper: 1
    steps: 2
  - name: x2
    label: Second
    lower: 10
    upper: 20
objectives:
  - name: torque
    label: Torque / Nm
model:
  base_files: [machine.geo]
  point_template: |
    x1={{ param "x1" }}
    x2={{ param "x2" }}
  structural: [stator]
  limits:
    x1: {min: 0, max: 1}
engine:
  type: local
  command: [sh, run.sh]
  env:
    SOLVER: fast
  workers: 2
  timeout: 10m
  artifact: out.dat
`

const hclSweep = `name       = "demo"
batch_size = 4
report_dir = "reports/demo"

axis "x1" {
  label = "First"
  lower = 0
  upper = 1
  steps = 2
}

axis "x2" {
  label = "Second"
  lower = 10
  upper = 20
}

objective "torque" {
  label = "Torque / Nm"
}

model {
  base_files     = ["machine.geo"]
  point_template = "x1={{ param \"x1\" }}\nx2={{ param \"x2\" }}\n"
  structural     = ["stator"]

  limit "x1" {
    min = 0
    max = 1
  }
}

engine "local" {
  command  = ["sh", "run.sh"]
  env      = { SOLVER = "fast" }
  workers  = 2
  timeout  = "10m"
  artifact = "out.dat"
}
`

func writeSweep(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sweep: %v", err)
	}
	return path
}

func TestLoadFormatsAgree(t *testing.T) {
	yamlPath := writeSweep(t, "demo.yml", yamlSweep)
	hclPath := writeSweep(t, "demo.hcl", hclSweep)

	fromYAML, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	fromHCL, err := Load(hclPath)
	if err != nil {
		t.Fatalf("load hcl: %v", err)
	}

	wantAxes := []grid.Axis{
		{Name: "x1", Label: "First", Lower: 0, Upper: 1, Steps: 2},
		{Name: "x2", Label: "Second", Lower: 10, Upper: 20, Steps: DefaultSteps},
	}
	for _, s := range []*Sweep{fromYAML, fromHCL} {
		if diff := cmp.Diff(wantAxes, s.Axes); diff != "" {
			t.Fatalf("%s axes mismatch (-want +got):\n%s", s.Source, diff)
		}
		if diff := cmp.Diff([]grid.Objective{{Name: "torque", Label: "Torque / Nm"}}, s.Objectives); diff != "" {
			t.Fatalf("%s objectives mismatch (-want +got):\n%s", s.Source, diff)
		}
		if s.Name != "demo" || s.BatchSize != 4 || s.ReportDir != "reports/demo" {
			t.Fatalf("%s: unexpected header %+v", s.Source, s)
		}
		if s.Engine.Type != EngineLocal || s.Engine.Workers != 2 || s.Engine.Timeout != 10*time.Minute {
			t.Fatalf("%s: unexpected engine %+v", s.Source, s.Engine)
		}
		if diff := cmp.Diff([]string{"sh", "run.sh"}, s.Engine.Command); diff != "" {
			t.Fatalf("%s command mismatch (-want +got):\n%s", s.Source, diff)
		}
		if s.Engine.Env["SOLVER"] != "fast" || s.Engine.Artifact != "out.dat" {
			t.Fatalf("%s: unexpected engine env/artifact %+v", s.Source, s.Engine)
		}
		if s.Model.Name != "demo" || !strings.Contains(s.Model.PointTemplate, `param "x2"`) {
			t.Fatalf("%s: unexpected model %+v", s.Source, s.Model)
		}
		if diff := cmp.Diff([]string{"stator"}, s.Model.StructuralAttrs); diff != "" {
			t.Fatalf("%s structural mismatch (-want +got):\n%s", s.Source, diff)
		}
		limit, ok := s.Model.Limits["x1"]
		if !ok || limit.Min == nil || limit.Max == nil || *limit.Min != 0 || *limit.Max != 1 {
			t.Fatalf("%s: unexpected limits %+v", s.Source, s.Model.Limits)
		}
		wantBase := filepath.Join(filepath.Dir(s.Source), "machine.geo")
		if diff := cmp.Diff([]string{wantBase}, s.Model.BaseFiles); diff != "" {
			t.Fatalf("%s base files mismatch (-want +got):\n%s", s.Source, diff)
		}
	}
}

func TestLoadBatchSizeEnv(t *testing.T) {
	path := writeSweep(t, "demo.yml", yamlSweep)

	t.Setenv(BatchSizeEnv, "7")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.BatchSize != 7 {
		t.Fatalf("batch size = %d, want 7", s.BatchSize)
	}

	t.Setenv(BatchSizeEnv, "many")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid %s", BatchSizeEnv)
	}
}

func TestParseYAMLValidation(t *testing.T) {
	input := `batch_size: -1
axes:
  - name: x1
    upper: 1
    steps: 0
  - name: x1
    lower: 0
    upper: 1
objectives: []
model:
  limits:
    y: {min: 2, max: 1}
engine:
  type: cluster
  timeout: soon
`
	_, err := ParseYAML([]byte(input), "bad.yml")
	var ves ValidationErrors
	if !errors.As(err, &ves) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}

	fields := make(map[string]bool, len(ves))
	for _, ve := range ves {
		fields[ve.Field] = true
		if ve.File != "bad.yml" {
			t.Fatalf("unexpected file %q", ve.File)
		}
	}
	for _, want := range []string{
		"batch_size",
		"axes[0].lower",
		"axes[0].steps",
		"axes[1].name",
		"objectives",
		"model.point_template",
		"model.limits.y",
		"engine.type",
		"engine.command",
		"engine.timeout",
	} {
		if !fields[want] {
			t.Fatalf("missing validation error for %s in:\n%v", want, err)
		}
	}
}

func TestParseYAMLSyntaxError(t *testing.T) {
	_, err := ParseYAML([]byte("axes: [\n"), "broken.yml")
	var ves ValidationErrors
	if !errors.As(err, &ves) || ves[0].Field != "yaml" {
		t.Fatalf("expected yaml validation error, got %v", err)
	}
}

func TestParseHCLSyntaxError(t *testing.T) {
	_, err := ParseHCL([]byte(`axis "x1" {`), "broken.hcl")
	var ves ValidationErrors
	if !errors.As(err, &ves) || ves[0].Field != "hcl" {
		t.Fatalf("expected hcl validation error, got %v", err)
	}
}

func TestParseHCLReadsEnvironment(t *testing.T) {
	t.Setenv("GRIDSWEEP_TEST_SCRIPT", "sim.sh")
	input := strings.Replace(hclSweep, `["sh", "run.sh"]`, `["sh", env.GRIDSWEEP_TEST_SCRIPT]`, 1)
	s, err := ParseHCL([]byte(input), "env.hcl")
	if err != nil {
		t.Fatalf("ParseHCL: %v", err)
	}
	if diff := cmp.Diff([]string{"sh", "sim.sh"}, s.Engine.Command); diff != "" {
		t.Fatalf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalEngineCannotDetach(t *testing.T) {
	input := strings.Replace(yamlSweep, "  type: local\n", "  type: local\n  detached: true\n", 1)
	_, err := ParseYAML([]byte(input), "detached.yml")
	if err == nil || !strings.Contains(err.Error(), "engine.detached") {
		t.Fatalf("expected engine.detached error, got %v", err)
	}
}

func TestQueueEngine(t *testing.T) {
	input := strings.Replace(yamlSweep, "  type: local\n", "  type: queue\n  detached: true\n  poll_interval: 250ms\n", 1)
	s, err := ParseYAML([]byte(input), "queue.yml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Engine.Type != EngineQueue || !s.Engine.Detached || s.Engine.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected engine %+v", s.Engine)
	}
}

func TestNameDefaultsToFileName(t *testing.T) {
	input := strings.Replace(yamlSweep, "name: demo\n", "", 1)
	s, err := ParseYAML([]byte(input), filepath.Join("sweeps", "rotor-skew.yml"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Name != "rotor-skew" {
		t.Fatalf("name = %q, want rotor-skew", s.Name)
	}
}
