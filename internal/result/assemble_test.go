package result

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"gridsweep/internal/grid"
)

func TestAssembleExample(t *testing.T) {
	domain := [][]float64{{0, 1}, {10, 20}}
	var outcomes []Outcome
	for _, p := range grid.Expand(domain) {
		outcomes = append(outcomes, Outcome{p[0] + p[1]})
	}

	tensor, err := Assemble(outcomes, domain)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 2}, tensor.Shape); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{10, 20, 11, 21}, tensor.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	nested, err := json.Marshal(tensor.Nested())
	if err != nil {
		t.Fatalf("marshal nested: %v", err)
	}
	if got, want := string(nested), "[[[10,20],[11,21]]]"; got != want {
		t.Fatalf("nested = %s, want %s", got, want)
	}
}

func TestAssembleRoundTrip(t *testing.T) {
	domain := [][]float64{{1, 2, 3}, {4, 5}, {6, 7, 8, 9}}
	n := grid.Cardinality(domain)
	width := 3
	known := &Tensor{Shape: Shape(width, domain), Data: make([]float64, width*n)}
	for i := range known.Data {
		known.Data[i] = float64(i) * 0.5
	}

	outcomes := make([]Outcome, n)
	for k := range outcomes {
		outcomes[k] = make(Outcome, width)
		for o := 0; o < width; o++ {
			outcomes[k][o] = known.Objective(o)[k]
		}
	}

	got, err := Assemble(outcomes, domain)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if diff := cmp.Diff(known, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if got, want := got.Shape, []int{3, 3, 2, 4}; !cmp.Equal(got, want) {
		t.Fatalf("shape = %v, want %v", got, want)
	}
}

func TestAssembleIndexesByAxis(t *testing.T) {
	domain := [][]float64{{1, 2, 3}, {10, 20}}
	var outcomes []Outcome
	for _, p := range grid.Expand(domain) {
		outcomes = append(outcomes, Outcome{p[0] + p[1], p[0] * p[1]})
	}

	tensor, err := Assemble(outcomes, domain)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if diff := cmp.Diff([]int{2, 3, 2}, tensor.Shape); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	for i, a := range domain[0] {
		for j, b := range domain[1] {
			sum, err := tensor.At(0, i, j)
			if err != nil {
				t.Fatalf("At(0,%d,%d): %v", i, j, err)
			}
			if sum != a+b {
				t.Fatalf("At(0,%d,%d) = %v, want %v", i, j, sum, a+b)
			}
			prod, err := tensor.At(1, i, j)
			if err != nil {
				t.Fatalf("At(1,%d,%d): %v", i, j, err)
			}
			if prod != a*b {
				t.Fatalf("At(1,%d,%d) = %v, want %v", i, j, prod, a*b)
			}
		}
	}

	want := []any{
		[]any{[]any{11.0, 21.0}, []any{12.0, 22.0}, []any{13.0, 23.0}},
		[]any{[]any{10.0, 20.0}, []any{20.0, 40.0}, []any{30.0, 60.0}},
	}
	if diff := cmp.Diff(want, tensor.Nested()); diff != "" {
		t.Fatalf("nested mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleCountMismatch(t *testing.T) {
	domain := [][]float64{{1, 2}, {3, 4}}
	_, err := Assemble([]Outcome{{1}, {2}, {3}}, domain)
	var aerr *AssemblyError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *AssemblyError, got %v", err)
	}
	if aerr.Expected != 4 || aerr.Got != 3 {
		t.Fatalf("unexpected error fields %+v", aerr)
	}
}

func TestAssembleWidthMismatch(t *testing.T) {
	domain := [][]float64{{1, 2}}
	_, err := Assemble([]Outcome{{1, 2}, {3}}, domain)
	var aerr *AssemblyError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *AssemblyError, got %v", err)
	}
	if aerr.Index != 1 || aerr.BadWidth != 1 {
		t.Fatalf("unexpected error fields %+v", aerr)
	}
}

func TestPadPreservesShape(t *testing.T) {
	domain := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	outcomes := []Outcome{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	outcomes = Pad(outcomes, grid.Cardinality(domain), 2)

	tensor, err := Assemble(outcomes, domain)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if diff := cmp.Diff([]int{2, 2, 2, 2}, tensor.Shape); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	want := []float64{1, 3, 5, 7, math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	if diff := cmp.Diff(want, tensor.Objective(0), cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("objective 0 mismatch (-want +got):\n%s", diff)
	}
}

func TestNestedRendersNaNAsNull(t *testing.T) {
	tensor := &Tensor{Shape: []int{1, 2}, Data: []float64{math.NaN(), 1}}
	data, err := json.Marshal(tensor.Nested())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(data); got != "[[null,1]]" {
		t.Fatalf("nested = %s", got)
	}
}

func TestTensorAt(t *testing.T) {
	tensor := &Tensor{Shape: []int{1, 2, 3}, Data: []float64{0, 1, 2, 3, 4, 5}}
	v, err := tensor.At(0, 1, 2)
	if err != nil || v != 5 {
		t.Fatalf("At(0,1,2) = %v, %v", v, err)
	}
	if _, err := tensor.At(0, 2, 0); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestOutcomeFailed(t *testing.T) {
	if !NaNOutcome(3).Failed() {
		t.Fatalf("NaN outcome should be failed")
	}
	if (Outcome{math.NaN(), 1}).Failed() {
		t.Fatalf("partially valid outcome should not be failed")
	}
}
