package result

// Assemble transposes the grid-ordered outcomes to objective-major order and
// reshapes them into the objective tensor.
//
// The number of outcomes must equal the grid cardinality and all outcomes
// must share one width; otherwise an *AssemblyError is returned.
func Assemble(outcomes []Outcome, domain [][]float64) (*Tensor, error) {
	expected := 1
	for _, values := range domain {
		expected *= len(values)
	}
	if len(domain) == 0 {
		expected = 0
	}
	if len(outcomes) == 0 || len(outcomes) != expected {
		return nil, &AssemblyError{Expected: expected, Got: len(outcomes), Index: -1, BadWidth: -1}
	}

	width := len(outcomes[0])
	if width == 0 {
		return nil, &AssemblyError{Expected: expected, Got: len(outcomes), Width: width, Index: 0, BadWidth: 0}
	}
	data := make([]float64, width*len(outcomes))
	for k, outcome := range outcomes {
		if len(outcome) != width {
			return nil, &AssemblyError{Expected: expected, Got: len(outcomes), Width: width, Index: k, BadWidth: len(outcome)}
		}
		for o, v := range outcome {
			data[o*len(outcomes)+k] = v
		}
	}

	return &Tensor{Shape: Shape(width, domain), Data: data}, nil
}
