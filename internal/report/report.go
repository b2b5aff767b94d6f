// Package report writes the grid report table and manages the report
// directory that keeps per-point artifacts.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gridsweep/internal/grid"
	"gridsweep/internal/result"
)

// FileName is the report written into a report directory.
const FileName = "grid-report.csv"

// Separator delimits report columns.
const Separator = ";"

// IDColumn heads the row identifier column.
const IDColumn = "Directory"

var (
	// ErrDirNotEmpty is returned when a report directory already has content.
	ErrDirNotEmpty = errors.New("report directory is not empty")
	// ErrArtifactMissing is returned when a task left no artifact to copy.
	ErrArtifactMissing = errors.New("artifact missing")
)

// Write emits the report table: a label header, a name header, and one row
// per grid point with its coordinates, objective values and identifier.
func Write(w io.Writer, axes []grid.Axis, objectives []grid.Objective, tensor *result.Tensor, points []grid.Point) error {
	if tensor == nil {
		return errors.New("report: tensor is required")
	}
	if tensor.Points() != len(points) {
		return fmt.Errorf("report: tensor covers %d points, grid has %d", tensor.Points(), len(points))
	}
	if len(tensor.Shape) == 0 || tensor.Shape[0] != len(objectives) {
		return fmt.Errorf("report: tensor has %v objectives, want %d", tensor.Shape, len(objectives))
	}

	bw := bufio.NewWriter(w)
	labels := make([]string, 0, len(axes)+len(objectives)+1)
	names := make([]string, 0, len(axes)+len(objectives)+1)
	for _, a := range axes {
		labels = append(labels, a.DisplayLabel())
		names = append(names, a.Name)
	}
	for _, o := range objectives {
		labels = append(labels, o.DisplayLabel())
		names = append(names, o.Name)
	}
	labels = append(labels, IDColumn)
	names = append(names, "id")
	writeRow(bw, labels)
	writeRow(bw, names)

	columns := make([][]float64, len(objectives))
	for o := range objectives {
		columns[o] = tensor.Objective(o)
	}
	row := make([]string, 0, len(axes)+len(objectives)+1)
	for k, p := range points {
		row = row[:0]
		for _, v := range p {
			row = append(row, FormatValue(v))
		}
		for o := range objectives {
			row = append(row, FormatValue(columns[o][k]))
		}
		row = append(row, strconv.Itoa(k))
		writeRow(bw, row)
	}
	return bw.Flush()
}

// WriteFile writes the report into dir/FileName.
func WriteFile(dir string, axes []grid.Axis, objectives []grid.Objective, tensor *result.Tensor, points []grid.Point) (string, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := Write(f, axes, objectives, tensor, points); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}

// FormatValue renders a float the shortest way that round-trips.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeRow(w *bufio.Writer, cells []string) {
	w.WriteString(strings.Join(cells, Separator))
	w.WriteByte('\n')
}
