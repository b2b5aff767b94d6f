package config

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"gridsweep/internal/model"
)

type hclFile struct {
	Name       string          `hcl:"name,optional"`
	BatchSize  int             `hcl:"batch_size,optional"`
	ReportDir  string          `hcl:"report_dir,optional"`
	Axes       []*hclAxis      `hcl:"axis,block"`
	Objectives []*hclObjective `hcl:"objective,block"`
	Model      *hclModel       `hcl:"model,block"`
	Engine     *hclEngine      `hcl:"engine,block"`
}

type hclAxis struct {
	Name  string   `hcl:"name,label"`
	Label string   `hcl:"label,optional"`
	Lower *float64 `hcl:"lower,optional"`
	Upper *float64 `hcl:"upper,optional"`
	Steps *int     `hcl:"steps,optional"`
}

type hclObjective struct {
	Name  string `hcl:"name,label"`
	Label string `hcl:"label,optional"`
}

type hclModel struct {
	Name          string      `hcl:"name,optional"`
	Script        string      `hcl:"script,optional"`
	BaseFiles     []string    `hcl:"base_files,optional"`
	BaseTemplate  string      `hcl:"base_template,optional"`
	BaseScript    string      `hcl:"base_script,optional"`
	PointTemplate string      `hcl:"point_template,optional"`
	Structural    []string    `hcl:"structural,optional"`
	Limits        []*hclLimit `hcl:"limit,block"`
}

type hclLimit struct {
	Name string   `hcl:"name,label"`
	Min  *float64 `hcl:"min,optional"`
	Max  *float64 `hcl:"max,optional"`
}

type hclEngine struct {
	Type         string            `hcl:"type,label"`
	Command      []string          `hcl:"command,optional"`
	Env          map[string]string `hcl:"env,optional"`
	Workers      int               `hcl:"workers,optional"`
	Timeout      string            `hcl:"timeout,optional"`
	ResultFile   string            `hcl:"result_file,optional"`
	Artifact     string            `hcl:"artifact,optional"`
	Detached     bool              `hcl:"detached,optional"`
	PollInterval string            `hcl:"poll_interval,optional"`
	KeepTaskDirs bool              `hcl:"keep_task_dirs,optional"`
}

// ParseHCL decodes and validates an HCL sweep definition:
//
//	name       = "demo"
//	batch_size = 4
//	axis "x1" {
//	  lower = 0
//	  upper = 1
//	  steps = 2
//	}
//	objective "torque" {}
//	model {
//	  point_template = "x1={{ param \"x1\" }}"
//	}
//	engine "local" {
//	  command = ["sh", env.SIM_SCRIPT]
//	}
//
// Expressions may read the process environment through the env object.
func ParseHCL(data []byte, source string) (*Sweep, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, source)
	if diags.HasErrors() {
		return nil, ValidationErrors{{File: source, Field: "hcl", Message: diags.Error()}}
	}
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(os.Environ()), &parsed); diags.HasErrors() {
		return nil, ValidationErrors{{File: source, Field: "hcl", Message: diags.Error()}}
	}
	return validateRaw(parsed.raw(), source)
}

func evalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

func (f hclFile) raw() rawSweep {
	raw := rawSweep{
		Name:      f.Name,
		BatchSize: f.BatchSize,
		ReportDir: f.ReportDir,
	}
	for _, a := range f.Axes {
		raw.Axes = append(raw.Axes, rawAxis{
			Name:  a.Name,
			Label: a.Label,
			Lower: a.Lower,
			Upper: a.Upper,
			Steps: a.Steps,
		})
	}
	for _, o := range f.Objectives {
		raw.Objectives = append(raw.Objectives, rawObjective{Name: o.Name, Label: o.Label})
	}
	if m := f.Model; m != nil {
		raw.Model = rawModel{
			Name:          m.Name,
			Script:        m.Script,
			BaseFiles:     m.BaseFiles,
			BaseTemplate:  m.BaseTemplate,
			BaseScript:    m.BaseScript,
			PointTemplate: m.PointTemplate,
			Structural:    m.Structural,
		}
		if len(m.Limits) > 0 {
			raw.Model.Limits = make(map[string]model.Limit, len(m.Limits))
			for _, l := range m.Limits {
				raw.Model.Limits[l.Name] = model.Limit{Min: l.Min, Max: l.Max}
			}
		}
	}
	if e := f.Engine; e != nil {
		raw.Engine = rawEngine{
			Type:         e.Type,
			Command:      e.Command,
			Env:          e.Env,
			Workers:      e.Workers,
			Timeout:      e.Timeout,
			ResultFile:   e.ResultFile,
			Artifact:     e.Artifact,
			Detached:     e.Detached,
			PollInterval: e.PollInterval,
			KeepTaskDirs: e.KeepTaskDirs,
		}
	}
	return raw
}
