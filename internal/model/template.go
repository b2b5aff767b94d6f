package model

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// Limit bounds a structural parameter.
type Limit struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Template assembles models from text templates.
//
// The base template is rendered once into the work directory for immutable
// sweeps; the point template is rendered for every point. Templates see the
// fields Name, Mode, Params (a map of axis name to value) and Base (the base
// model file names).
type Template struct {
	Name string
	// Script is the per-point script file name.
	Script string
	// BaseFiles are existing files shared by every task.
	BaseFiles []string
	// BaseTemplate renders an extra shared file named BaseScript.
	BaseTemplate string
	BaseScript   string
	// PointTemplate renders the per-point script.
	PointTemplate string
	// StructuralAttrs lists attributes that change the model structure.
	StructuralAttrs []string
	Limits          map[string]Limit

	point *template.Template
	base  *template.Template
	files []string
}

// NewTemplate parses the templates of t.
func NewTemplate(t Template) (*Template, error) {
	if strings.TrimSpace(t.PointTemplate) == "" {
		return nil, fmt.Errorf("model %s: point template is required", t.Name)
	}
	if t.Script == "" {
		t.Script = "model.script"
	}
	funcs := template.FuncMap{"param": paramFunc}
	var err error
	t.point, err = template.New("point").Funcs(funcs).Option("missingkey=error").Parse(t.PointTemplate)
	if err != nil {
		return nil, fmt.Errorf("model %s: parse point template: %w", t.Name, err)
	}
	if strings.TrimSpace(t.BaseTemplate) != "" {
		if t.BaseScript == "" {
			t.BaseScript = "base.script"
		}
		t.base, err = template.New("base").Funcs(funcs).Option("missingkey=error").Parse(t.BaseTemplate)
		if err != nil {
			return nil, fmt.Errorf("model %s: parse base template: %w", t.Name, err)
		}
	}
	return &t, nil
}

func (t *Template) ScriptName() string {
	return t.Script
}

func (t *Template) Structural(attr string) bool {
	for _, s := range t.StructuralAttrs {
		if s == attr {
			return true
		}
	}
	return false
}

// BaseModel verifies the shared files and renders the base template into
// workdir.
func (t *Template) BaseModel(ctx context.Context, workdir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files := make([]string, 0, len(t.BaseFiles)+1)
	for _, f := range t.BaseFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolve base file: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("base file: %w", err)
		}
		files = append(files, abs)
	}
	if t.base != nil {
		var buf bytes.Buffer
		if err := t.base.Execute(&buf, t.data(nil, Immutable)); err != nil {
			return nil, fmt.Errorf("render base model: %w", err)
		}
		if err := os.MkdirAll(workdir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure workdir: %w", err)
		}
		path := filepath.Join(workdir, t.BaseScript)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return nil, fmt.Errorf("write base model: %w", err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve base model: %w", err)
		}
		files = append(files, abs)
	}
	t.files = files
	return files, nil
}

// PointModel checks the structural limits and renders the point script.
func (t *Template) PointModel(params map[string]float64, mode Mutability) ([]string, error) {
	if err := t.checkLimits(params); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.point.Execute(&buf, t.data(params, mode)); err != nil {
		return nil, fmt.Errorf("render point model: %w", err)
	}
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n"), nil
}

func (t *Template) checkLimits(params map[string]float64) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		limit, ok := t.Limits[name]
		if !ok {
			continue
		}
		v := params[name]
		if limit.Min != nil && v < *limit.Min {
			return fmt.Errorf("%w: %s=%g below %g", ErrIncompatible, name, v, *limit.Min)
		}
		if limit.Max != nil && v > *limit.Max {
			return fmt.Errorf("%w: %s=%g above %g", ErrIncompatible, name, v, *limit.Max)
		}
	}
	return nil
}

type templateData struct {
	Name   string
	Mode   string
	Params map[string]float64
	Base   []string
}

func (t *Template) data(params map[string]float64, mode Mutability) templateData {
	base := make([]string, len(t.files))
	for i, f := range t.files {
		base[i] = filepath.Base(f)
	}
	if params == nil {
		params = map[string]float64{}
	}
	return templateData{Name: t.Name, Mode: mode.String(), Params: params, Base: base}
}

// paramFunc looks a parameter up by dotted name, which index cannot express
// in a template without quoting.
func paramFunc(params map[string]float64, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("unknown parameter %q", name)
	}
	return v, nil
}
