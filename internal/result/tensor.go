package result

import (
	"fmt"
	"math"
)

// Tensor is a dense row-major array of objective values. The first dimension
// indexes objectives; the rest span the grid in enumeration order.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Len is the total number of values.
func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}

// Points is the number of grid points covered by the tensor.
func (t *Tensor) Points() int {
	if t == nil || len(t.Shape) == 0 || t.Shape[0] == 0 {
		return 0
	}
	return len(t.Data) / t.Shape[0]
}

// At returns the value at the given multi-index.
func (t *Tensor) At(idx ...int) (float64, error) {
	if len(idx) != len(t.Shape) {
		return 0, fmt.Errorf("tensor: got %d indices for rank %d", len(idx), len(t.Shape))
	}
	pos := 0
	for i, n := range t.Shape {
		if idx[i] < 0 || idx[i] >= n {
			return 0, fmt.Errorf("tensor: index %d out of range [0,%d) on dim %d", idx[i], n, i)
		}
		pos = pos*n + idx[i]
	}
	return t.Data[pos], nil
}

// Objective returns the grid-ordered values of objective o.
func (t *Tensor) Objective(o int) []float64 {
	n := t.Points()
	if o < 0 || n == 0 || (o+1)*n > len(t.Data) {
		return nil
	}
	return t.Data[o*n : (o+1)*n : (o+1)*n]
}

// Nested returns the tensor as nested slices for JSON output. NaN values are
// rendered as nil.
func (t *Tensor) Nested() any {
	if t == nil || len(t.Shape) == 0 {
		return []any{}
	}
	out, _ := nest(t.Shape, t.Data)
	return out
}

func nest(shape []int, data []float64) (any, []float64) {
	if len(shape) == 0 {
		v := data[0]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, data[1:]
		}
		return v, data[1:]
	}
	out := make([]any, shape[0])
	for i := range out {
		out[i], data = nest(shape[1:], data)
	}
	return out, data
}
