// Package model builds the simulation input files for grid points.
package model

import (
	"context"
	"errors"
	"strings"

	"gridsweep/internal/grid"
)

// Mutability tells whether the grid axes change the structure of the model.
type Mutability int

const (
	// Immutable models are built once and shared by every point.
	Immutable Mutability = iota
	// StructurallyVariable models are rebuilt for every point.
	StructurallyVariable
)

func (m Mutability) String() string {
	if m == StructurallyVariable {
		return "structurally-variable"
	}
	return "immutable"
}

// ErrIncompatible is returned when a point violates a model constraint.
var ErrIncompatible = errors.New("point incompatible with model")

// Assembler produces the input artifacts of simulation runs.
type Assembler interface {
	// ScriptName is the file name of the per-point script in a task directory.
	ScriptName() string
	// Structural reports whether attr is a structural model attribute.
	Structural(attr string) bool
	// BaseModel builds the shared model in workdir and returns its files.
	BaseModel(ctx context.Context, workdir string) ([]string, error)
	// PointModel returns the script lines for one point. Immutable mode
	// scripts reuse the base model files.
	PointModel(params map[string]float64, mode Mutability) ([]string, error)
}

// DecideMutability returns StructurallyVariable when any axis addresses a
// structural attribute. Only the first dotted segment of an axis name is
// considered, so "stator.bore" addresses "stator".
func DecideMutability(axes []grid.Axis, a Assembler) Mutability {
	for _, axis := range axes {
		attr, _, _ := strings.Cut(axis.Name, ".")
		if a.Structural(attr) {
			return StructurallyVariable
		}
	}
	return Immutable
}

// Params binds point values to axis names.
func Params(axes []grid.Axis, point grid.Point) map[string]float64 {
	params := make(map[string]float64, len(axes))
	for i, axis := range axes {
		if i < len(point) {
			params[axis.Name] = point[i]
		}
	}
	return params
}
