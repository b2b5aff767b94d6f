package grid

import (
	"fmt"
	"strings"
)

// Axis is one decision variable sampled on a regular range.
type Axis struct {
	Name  string  `json:"name" yaml:"name"`
	Label string  `json:"label" yaml:"label"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
	Steps int     `json:"steps" yaml:"steps"`
}

// Objective identifies one scalar output column.
type Objective struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label" yaml:"label"`
}

// Point is one grid coordinate, positionally aligned to the axis list.
type Point []float64

// DisplayLabel returns the label, falling back to the name.
func (a Axis) DisplayLabel() string {
	if strings.TrimSpace(a.Label) != "" {
		return a.Label
	}
	return a.Name
}

// DisplayLabel returns the label, falling back to the name.
func (o Objective) DisplayLabel() string {
	if strings.TrimSpace(o.Label) != "" {
		return o.Label
	}
	return o.Name
}

// Values returns Steps linearly spaced values from Lower to Upper inclusive.
func (a Axis) Values() []float64 {
	if a.Steps <= 0 {
		return nil
	}
	if a.Steps == 1 {
		return []float64{a.Lower}
	}
	values := make([]float64, a.Steps)
	delta := (a.Upper - a.Lower) / float64(a.Steps-1)
	for i := range values {
		values[i] = a.Lower + float64(i)*delta
	}
	values[a.Steps-1] = a.Upper
	return values
}

// Sample returns the sampled value sequence of every axis.
func Sample(axes []Axis) [][]float64 {
	domain := make([][]float64, len(axes))
	for i, axis := range axes {
		domain[i] = axis.Values()
	}
	return domain
}

// Steps returns the number of values of every axis in the domain.
func Steps(domain [][]float64) []int {
	steps := make([]int, len(domain))
	for i, values := range domain {
		steps[i] = len(values)
	}
	return steps
}

// Cardinality is the number of grid points spanned by the domain.
func Cardinality(domain [][]float64) int {
	if len(domain) == 0 {
		return 0
	}
	total := 1
	for _, values := range domain {
		total *= len(values)
	}
	return total
}

// Names returns the axis names in order.
func Names(axes []Axis) []string {
	names := make([]string, len(axes))
	for i, axis := range axes {
		names[i] = axis.Name
	}
	return names
}

// Validate checks that axes and objectives describe a usable grid.
func Validate(axes []Axis, objectives []Objective) error {
	if len(axes) == 0 {
		return fmt.Errorf("at least one axis is required")
	}
	if len(objectives) == 0 {
		return fmt.Errorf("at least one objective is required")
	}
	seen := make(map[string]struct{}, len(axes))
	for idx, axis := range axes {
		name := strings.TrimSpace(axis.Name)
		if name == "" {
			return fmt.Errorf("axis %d: name is required", idx)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("axis %d: duplicate name %q", idx, name)
		}
		seen[name] = struct{}{}
		if axis.Steps < 1 {
			return fmt.Errorf("axis %s: steps must be >= 1, got %d", name, axis.Steps)
		}
	}
	seen = make(map[string]struct{}, len(objectives))
	for idx, obj := range objectives {
		name := strings.TrimSpace(obj.Name)
		if name == "" {
			return fmt.Errorf("objective %d: name is required", idx)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("objective %d: duplicate name %q", idx, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
