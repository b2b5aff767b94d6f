// Package config loads sweep definition files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gridsweep/internal/grid"
	"gridsweep/internal/model"
)

const (
	// DefaultSteps is used for axes that do not set steps.
	DefaultSteps = 10

	EngineLocal = "local"
	EngineQueue = "queue"

	// BatchSizeEnv overrides batch_size of every loaded sweep.
	BatchSizeEnv = "GRIDSWEEP_BATCH_SIZE"
)

// Sweep is a validated sweep definition.
type Sweep struct {
	Name       string
	BatchSize  int
	Axes       []grid.Axis
	Objectives []grid.Objective
	Model      model.Template
	Engine     Engine
	// ReportDir is kept as written; callers resolve it against the workspace.
	ReportDir string
	// Source is the file the sweep was loaded from.
	Source string
}

// Engine selects and configures the execution engine.
type Engine struct {
	Type         string
	Command      []string
	Env          map[string]string
	Workers      int
	Timeout      time.Duration
	ResultFile   string
	Artifact     string
	Detached     bool
	PollInterval time.Duration
	KeepTaskDirs bool
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// Load reads a sweep definition. Files ending in .hcl are parsed as HCL,
// everything else as YAML. Relative base files are resolved against the
// directory of path.
func Load(path string) (*Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep %s: %w", path, err)
	}
	var sweep *Sweep
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		sweep, err = ParseHCL(data, path)
	} else {
		sweep, err = ParseYAML(data, path)
	}
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for i, f := range sweep.Model.BaseFiles {
		if !filepath.IsAbs(f) {
			sweep.Model.BaseFiles[i] = filepath.Join(dir, f)
		}
	}
	if err := applyEnv(sweep, os.Getenv); err != nil {
		return nil, err
	}
	return sweep, nil
}

func applyEnv(s *Sweep, getenv func(string) string) error {
	raw := strings.TrimSpace(getenv(BatchSizeEnv))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fmt.Errorf("%s: invalid batch size %q", BatchSizeEnv, raw)
	}
	s.BatchSize = n
	return nil
}

// rawSweep is the format-neutral shape both decoders produce.
type rawSweep struct {
	Name       string         `yaml:"name"`
	BatchSize  int            `yaml:"batch_size"`
	ReportDir  string         `yaml:"report_dir"`
	Axes       []rawAxis      `yaml:"axes"`
	Objectives []rawObjective `yaml:"objectives"`
	Model      rawModel       `yaml:"model"`
	Engine     rawEngine      `yaml:"engine"`
}

type rawAxis struct {
	Name  string   `yaml:"name"`
	Label string   `yaml:"label"`
	Lower *float64 `yaml:"lower"`
	Upper *float64 `yaml:"upper"`
	Steps *int     `yaml:"steps"`
}

type rawObjective struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
}

type rawModel struct {
	Name          string                 `yaml:"name"`
	Script        string                 `yaml:"script"`
	BaseFiles     []string               `yaml:"base_files"`
	BaseTemplate  string                 `yaml:"base_template"`
	BaseScript    string                 `yaml:"base_script"`
	PointTemplate string                 `yaml:"point_template"`
	Structural    []string               `yaml:"structural"`
	Limits        map[string]model.Limit `yaml:"limits"`
}

type rawEngine struct {
	Type         string            `yaml:"type"`
	Command      []string          `yaml:"command"`
	Env          map[string]string `yaml:"env"`
	Workers      int               `yaml:"workers"`
	Timeout      string            `yaml:"timeout"`
	ResultFile   string            `yaml:"result_file"`
	Artifact     string            `yaml:"artifact"`
	Detached     bool              `yaml:"detached"`
	PollInterval string            `yaml:"poll_interval"`
	KeepTaskDirs bool              `yaml:"keep_task_dirs"`
}

func validateRaw(raw rawSweep, source string) (*Sweep, error) {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	if raw.BatchSize < 0 {
		add("batch_size", "must be >= 0, got %d", raw.BatchSize)
	}

	if len(raw.Axes) == 0 {
		add("axes", "at least one axis is required")
	}
	axes := make([]grid.Axis, 0, len(raw.Axes))
	axisNames := make(map[string]bool, len(raw.Axes))
	for i, a := range raw.Axes {
		field := fmt.Sprintf("axes[%d]", i)
		axis := grid.Axis{Name: strings.TrimSpace(a.Name), Label: a.Label, Steps: DefaultSteps}
		if axis.Name == "" {
			add(field+".name", "is required")
		} else if axisNames[axis.Name] {
			add(field+".name", "duplicate axis %q", axis.Name)
		}
		axisNames[axis.Name] = true
		if a.Lower == nil {
			add(field+".lower", "is required")
		} else {
			axis.Lower = *a.Lower
		}
		if a.Upper == nil {
			add(field+".upper", "is required")
		} else {
			axis.Upper = *a.Upper
		}
		if a.Steps != nil {
			axis.Steps = *a.Steps
			if axis.Steps < 1 {
				add(field+".steps", "must be >= 1, got %d", axis.Steps)
			}
		}
		axes = append(axes, axis)
	}

	if len(raw.Objectives) == 0 {
		add("objectives", "at least one objective is required")
	}
	objectives := make([]grid.Objective, 0, len(raw.Objectives))
	objNames := make(map[string]bool, len(raw.Objectives))
	for i, o := range raw.Objectives {
		field := fmt.Sprintf("objectives[%d]", i)
		obj := grid.Objective{Name: strings.TrimSpace(o.Name), Label: o.Label}
		if obj.Name == "" {
			add(field+".name", "is required")
		} else if objNames[obj.Name] {
			add(field+".name", "duplicate objective %q", obj.Name)
		}
		objNames[obj.Name] = true
		objectives = append(objectives, obj)
	}

	if strings.TrimSpace(raw.Model.PointTemplate) == "" {
		add("model.point_template", "is required")
	}
	for attr, limit := range raw.Model.Limits {
		if !axisNames[attr] {
			add("model.limits."+attr, "does not name an axis")
		}
		if limit.Min != nil && limit.Max != nil && *limit.Min > *limit.Max {
			add("model.limits."+attr, "min %g exceeds max %g", *limit.Min, *limit.Max)
		}
	}
	modelName := raw.Model.Name
	if modelName == "" {
		modelName = name
	}

	eng := Engine{
		Type:         strings.ToLower(strings.TrimSpace(raw.Engine.Type)),
		Command:      raw.Engine.Command,
		Env:          raw.Engine.Env,
		Workers:      raw.Engine.Workers,
		ResultFile:   raw.Engine.ResultFile,
		Artifact:     raw.Engine.Artifact,
		Detached:     raw.Engine.Detached,
		KeepTaskDirs: raw.Engine.KeepTaskDirs,
	}
	if eng.Type == "" {
		eng.Type = EngineLocal
	}
	switch eng.Type {
	case EngineLocal:
		if eng.Detached {
			add("engine.detached", "only the queue engine can run detached")
		}
	case EngineQueue:
	default:
		add("engine.type", "unknown engine %q (want %s or %s)", eng.Type, EngineLocal, EngineQueue)
	}
	if len(eng.Command) == 0 {
		add("engine.command", "is required")
	}
	if eng.Workers < 0 {
		add("engine.workers", "must be >= 0, got %d", eng.Workers)
	}
	if d, ok := parseDuration(raw.Engine.Timeout); ok {
		eng.Timeout = d
	} else {
		add("engine.timeout", "invalid duration %q", raw.Engine.Timeout)
	}
	if d, ok := parseDuration(raw.Engine.PollInterval); ok {
		eng.PollInterval = d
	} else {
		add("engine.poll_interval", "invalid duration %q", raw.Engine.PollInterval)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &Sweep{
		Name:       name,
		BatchSize:  raw.BatchSize,
		Axes:       axes,
		Objectives: objectives,
		Model: model.Template{
			Name:            modelName,
			Script:          raw.Model.Script,
			BaseFiles:       raw.Model.BaseFiles,
			BaseTemplate:    raw.Model.BaseTemplate,
			BaseScript:      raw.Model.BaseScript,
			PointTemplate:   raw.Model.PointTemplate,
			StructuralAttrs: raw.Model.Structural,
			Limits:          raw.Model.Limits,
		},
		Engine:    eng,
		ReportDir: raw.ReportDir,
		Source:    source,
	}, nil
}

func parseDuration(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
