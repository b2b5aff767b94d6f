package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gridsweep/internal/engine"
)

const (
	defaultResultFile = "result.json"
	transcriptFile    = "transcript.log"
	transcriptTail    = 20
)

// Runner executes the simulation command for a single task directory.
type Runner struct {
	// Command is the argv run inside the task directory.
	Command []string
	Env     map[string]string
	// Timeout bounds one execution; zero means no limit.
	Timeout time.Duration
	// ResultFile is the JSON result the command must leave behind.
	ResultFile string
	// Artifact is the primary output file copied into report directories.
	// It defaults to ResultFile.
	Artifact string
}

// Run executes the command in dir and returns the task's payload.
func (r *Runner) Run(ctx context.Context, taskID int, dir string) (*engine.Payload, error) {
	if len(r.Command) == 0 {
		return nil, &engine.TaskError{TaskID: taskID, Message: "command is required"}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &engine.TaskError{TaskID: taskID, Message: "stat task dir", Err: err}
	}
	if !info.IsDir() {
		return nil, &engine.TaskError{TaskID: taskID, Message: fmt.Sprintf("task dir is not a directory: %s", dir)}
	}

	resultPath := filepath.Join(dir, r.resultFile())
	transcriptPath := filepath.Join(dir, transcriptFile)
	transcript, err := os.OpenFile(transcriptPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &engine.TaskError{TaskID: taskID, Message: "open transcript", Err: err}
	}
	defer func() {
		_ = transcript.Close()
	}()

	runCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	env := map[string]string{
		"GRIDSWEEP_TASK_ID":  strconv.Itoa(taskID),
		"GRIDSWEEP_TASK_DIR": dir,
		"GRIDSWEEP_RESULT":   resultPath,
	}
	for k, v := range r.Env {
		env[k] = v
	}

	cmd := exec.CommandContext(runCtx, r.Command[0], r.Command[1:]...)
	cmd.Dir = dir
	cmd.Stdout = transcript
	cmd.Stderr = transcript
	cmd.Env = mergeEnv(os.Environ(), env)

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.Timeout, err)
		}
		return nil, &engine.TaskError{
			TaskID:   taskID,
			ExitCode: exitCodeFromError(err),
			Message:  tail(transcriptPath, transcriptTail),
			Err:      err,
		}
	}

	data, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, &engine.TaskError{TaskID: taskID, Message: "read result", Err: err}
	}

	return &engine.Payload{
		Artifact: filepath.Join(dir, r.artifact()),
		Data:     data,
	}, nil
}

func (r *Runner) resultFile() string {
	if strings.TrimSpace(r.ResultFile) == "" {
		return defaultResultFile
	}
	return r.ResultFile
}

func (r *Runner) artifact() string {
	if strings.TrimSpace(r.Artifact) == "" {
		return r.resultFile()
	}
	return r.Artifact
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key := entry
		if idx := strings.IndexByte(entry, '='); idx >= 0 {
			key = entry[:idx]
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, entry)
	}
	for key, value := range overrides {
		merged = append(merged, fmt.Sprintf("%s=%s", key, value))
	}
	return merged
}

func exitCodeFromError(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 124
	}
	return 1
}

func tail(path string, lines int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return strings.TrimSpace(strings.Join(all, "\n"))
}
