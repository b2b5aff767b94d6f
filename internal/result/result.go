// Package result folds per-point outcome vectors into the objective tensor.
package result

import (
	"fmt"
	"math"
)

// Outcome holds the objective values of one grid point. A failed or skipped
// point is all NaN.
type Outcome []float64

// NaNOutcome returns an outcome of width n with every slot set to NaN.
func NaNOutcome(n int) Outcome {
	out := make(Outcome, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Failed reports whether every slot is NaN.
func (o Outcome) Failed() bool {
	if len(o) == 0 {
		return false
	}
	for _, v := range o {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Status tags how a sweep ended.
type Status int

const (
	// StatusEmpty means no usable data was produced.
	StatusEmpty Status = iota
	// StatusComplete means every batch was executed.
	StatusComplete
	// StatusPartial means the sweep was stopped and unexecuted points are NaN.
	StatusPartial
	// StatusDetached means work was handed to a fire-and-forget engine.
	StatusDetached
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPartial:
		return "partial"
	case StatusDetached:
		return "detached"
	default:
		return "empty"
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AssemblyError reports outcomes that cannot be reshaped into the grid.
type AssemblyError struct {
	Expected int
	Got      int
	Width    int
	Index    int
	BadWidth int
}

func (e *AssemblyError) Error() string {
	if e.BadWidth >= 0 && e.Index >= 0 {
		return fmt.Sprintf("assemble: outcome %d has %d values, want %d", e.Index, e.BadWidth, e.Width)
	}
	return fmt.Sprintf("assemble: got %d outcomes, grid needs %d", e.Got, e.Expected)
}

// Shape returns the tensor shape for width objectives over domain: the
// objective count followed by the axis lengths in axis order. With the last
// axis varying fastest in the grid, At(o, i0, ..., iN) is the point whose
// axis k sits at index ik.
func Shape(width int, domain [][]float64) []int {
	shape := make([]int, 0, len(domain)+1)
	shape = append(shape, width)
	for _, values := range domain {
		shape = append(shape, len(values))
	}
	return shape
}

// Pad appends NaN outcomes until there are total of them.
func Pad(outcomes []Outcome, total, width int) []Outcome {
	for len(outcomes) < total {
		outcomes = append(outcomes, NaNOutcome(width))
	}
	return outcomes
}
