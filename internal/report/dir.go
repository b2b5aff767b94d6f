package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// CheckDir verifies that dir exists, is a directory and is empty.
func CheckDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("report directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("report directory is not a directory: %s", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read report directory: %w", err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("%w: %s", ErrDirNotEmpty, dir)
	}
	return nil
}

// ArtifactDir is the directory that keeps the artifact of point id.
func ArtifactDir(reportDir string, id int) string {
	return filepath.Join(reportDir, strconv.Itoa(id))
}

// CopyArtifact copies src into the artifact directory of point id. A missing
// source yields ErrArtifactMissing.
func CopyArtifact(reportDir string, id int, src string) (string, error) {
	if src == "" {
		return "", ErrArtifactMissing
	}
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrArtifactMissing, src)
	}
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()

	dir := ArtifactDir(reportDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close artifact copy: %w", err)
	}
	return dst, nil
}
