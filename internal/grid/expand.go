package grid

// Expand returns the cartesian product of the per-axis value sequences.
//
// Points are enumerated with the last axis varying fastest. Every axis column
// is built from a repeat count: each value is repeated as many times as the
// product of the lengths of the axes to its right, and that run is tiled
// until the column covers the whole grid. Result reshaping relies on this
// order, so it must stay stable.
func Expand(domain [][]float64) []Point {
	total := Cardinality(domain)
	if total == 0 {
		return nil
	}

	points := make([]Point, total)
	backing := make([]float64, total*len(domain))
	for k := range points {
		points[k] = Point(backing[k*len(domain) : (k+1)*len(domain) : (k+1)*len(domain)])
	}

	repeat := 1
	for i := len(domain) - 1; i >= 0; i-- {
		values := domain[i]
		for k := 0; k < total; k++ {
			points[k][i] = values[(k/repeat)%len(values)]
		}
		repeat *= len(values)
	}
	return points
}

// Index returns the grid position of the point with the given per-axis
// indices, consistent with Expand.
func Index(steps []int, indices []int) int {
	pos := 0
	for i := range steps {
		pos = pos*steps[i] + indices[i]
	}
	return pos
}
