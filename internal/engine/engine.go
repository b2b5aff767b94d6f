// Package engine defines the job-execution contract the sweep orchestrator
// submits work through.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the lifecycle state of a task.
type Status int

const (
	Pending Status = iota
	Running
	Complete
	Error
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the task will not change state again.
func (s Status) Terminal() bool {
	return s == Complete || s == Error
}

// Engine creates jobs and executes their tasks.
type Engine interface {
	CreateJob(workdir string) (Job, error)
	// Submit starts every task added since the last cleanup.
	Submit(ctx context.Context) (string, error)
	// Join blocks until all submitted tasks reached a terminal status.
	Join(ctx context.Context) (string, error)
}

// FireAndForget is implemented by engines that may hand work off without
// synchronous result collection.
type FireAndForget interface {
	Detached() bool
}

// IsDetached reports whether e accepts work without returning results.
func IsDetached(e Engine) bool {
	ff, ok := e.(FireAndForget)
	return ok && ff.Detached()
}

// Job groups the tasks of one batch.
type Job interface {
	AddTask() (Task, error)
	Tasks() []Task
	// Cleanup forgets the tasks of the previous batch.
	Cleanup() error
}

// Task is one unit of work bound to a single grid point.
type Task interface {
	ID() int
	Directory() string
	// AddFile writes content to name inside the task directory.
	AddFile(name string, content []byte) error
	// CopyFile copies an existing file into the task directory.
	CopyFile(path string) error
	Status() Status
	// Results returns the payload of a complete task, or a *TaskError.
	Results() (*Payload, error)
}

// Payload is the raw result of a complete task.
type Payload struct {
	// Artifact is the path of the task's primary output file.
	Artifact string
	Data     []byte
}

// Decode unmarshals the JSON payload into v.
func (p *Payload) Decode(v any) error {
	if p == nil || len(p.Data) == 0 {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// ErrTaskFailed matches every *TaskError.
var ErrTaskFailed = errors.New("task failed")

// TaskError describes why a task ended in the Error state.
type TaskError struct {
	TaskID   int
	ExitCode int
	Message  string
	Err      error
}

func (e *TaskError) Error() string {
	msg := fmt.Sprintf("task %d failed", e.TaskID)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TaskError) Is(target error) bool {
	return target == ErrTaskFailed
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
