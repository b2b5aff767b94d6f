package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is a parsed grid report.
type Table struct {
	Labels []string
	Names  []string
	Rows   [][]string
}

// Read parses a report written by Write.
func Read(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines [][]string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, strings.Split(line, Separator))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("read report: expected 2 header rows, got %d", len(lines))
	}
	t := &Table{Labels: lines[0], Names: lines[1], Rows: lines[2:]}
	for i, row := range t.Rows {
		if len(row) != len(t.Labels) {
			return nil, fmt.Errorf("read report: row %d has %d columns, want %d", i, len(row), len(t.Labels))
		}
	}
	return t, nil
}

// ReadFile parses the report at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f)
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]string, bool) {
	idx := -1
	for i, n := range t.Names {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}
