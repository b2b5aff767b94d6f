// Package queue persists sweep tasks in a SQLite queue so that workers on
// other processes or hosts can execute them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridsweep/internal/engine"
)

// Config configures a queue engine.
type Config struct {
	Store *Store
	// Detached engines enqueue work and never wait for results.
	Detached bool
	// PollInterval is how often Join re-reads task states.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Engine submits tasks to the queue store.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	job       *Job
	submitted []*Task
}

// New returns a queue engine bound to cfg.Store.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("queue engine: store is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Detached reports whether the engine hands work off without collecting it.
func (e *Engine) Detached() bool {
	return e.cfg.Detached
}

// CreateJob creates a job with a fresh id below workdir.
func (e *Engine) CreateJob(workdir string) (engine.Job, error) {
	jobID := uuid.NewString()
	dir, err := filepath.Abs(filepath.Join(workdir, jobID))
	if err != nil {
		return nil, fmt.Errorf("resolve job dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	job := &Job{ID: jobID, dir: dir}

	e.mu.Lock()
	e.job = job
	e.submitted = nil
	e.mu.Unlock()
	return job, nil
}

// Submit enqueues every pending task of the current job.
func (e *Engine) Submit(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil {
		return "", errors.New("queue engine: no job created")
	}

	var pending []*Task
	var records []Record
	for _, t := range e.job.snapshot() {
		if t.Status() != engine.Pending || t.enqueued {
			continue
		}
		pending = append(pending, t)
		records = append(records, Record{ID: t.recordID(), JobID: e.job.ID, Seq: t.id, Dir: t.dir})
	}
	if err := e.cfg.Store.Enqueue(records); err != nil {
		return "", err
	}
	for _, t := range pending {
		t.enqueued = true
	}
	e.submitted = pending
	e.logger.Debug("queue batch submitted", "job", e.job.ID, "tasks", len(pending))
	return fmt.Sprintf("queued %d tasks for job %s", len(pending), e.job.ID), nil
}

// Join polls the store until every submitted task reached a terminal state.
func (e *Engine) Join(ctx context.Context) (string, error) {
	if e.cfg.Detached {
		return "", errors.New("queue engine: detached engines cannot be joined")
	}
	e.mu.Lock()
	job := e.job
	submitted := e.submitted
	e.mu.Unlock()
	if job == nil || len(submitted) == 0 {
		return "nothing submitted", nil
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		done, failed, err := e.refresh(job, submitted)
		if err != nil {
			return "", err
		}
		if done {
			return fmt.Sprintf("%d tasks finished, %d failed", len(submitted), failed), nil
		}
		if n, err := e.cfg.Store.RequeueExpired(time.Now()); err != nil {
			e.logger.Warn("requeue expired tasks", "error", err)
		} else if n > 0 {
			e.logger.Info("requeued tasks with expired lease", "count", n)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) refresh(job *Job, submitted []*Task) (bool, int, error) {
	recs, err := e.cfg.Store.ListJob(job.ID)
	if err != nil {
		return false, 0, err
	}
	byID := make(map[string]Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	done := true
	failed := 0
	for _, t := range submitted {
		rec, ok := byID[t.recordID()]
		if !ok {
			return false, 0, fmt.Errorf("task %s missing from queue", t.recordID())
		}
		t.apply(rec)
		switch t.Status() {
		case engine.Error:
			failed++
		case engine.Complete:
		default:
			done = false
		}
	}
	return done, failed, nil
}

// Job is the set of tasks created since the last cleanup.
type Job struct {
	ID  string
	dir string

	mu     sync.Mutex
	nextID int
	tasks  []*Task
}

// AddTask creates a task directory for the next grid point.
func (j *Job) AddTask() (engine.Task, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextID
	j.nextID++
	dir := filepath.Join(j.dir, fmt.Sprintf("task-%05d", id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}
	task := &Task{id: id, dir: dir, jobID: j.ID}
	j.tasks = append(j.tasks, task)
	return task, nil
}

// Tasks returns the tasks added since the last cleanup.
func (j *Job) Tasks() []engine.Task {
	snap := j.snapshot()
	out := make([]engine.Task, len(snap))
	for i, t := range snap {
		out[i] = t
	}
	return out
}

// Cleanup forgets the current tasks. Task directories stay on disk because
// workers may still be reading them.
func (j *Job) Cleanup() error {
	j.mu.Lock()
	j.tasks = nil
	j.mu.Unlock()
	return nil
}

func (j *Job) snapshot() []*Task {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*Task(nil), j.tasks...)
}

// Task mirrors one queued record.
type Task struct {
	id    int
	dir   string
	jobID string

	mu       sync.Mutex
	enqueued bool
	status   engine.Status
	payload  *engine.Payload
	errMsg   string
}

func (t *Task) ID() int           { return t.id }
func (t *Task) Directory() string { return t.dir }

func (t *Task) AddFile(name string, content []byte) error {
	return engine.WriteFile(t.dir, name, content)
}

func (t *Task) CopyFile(path string) error {
	if err := engine.CopyFile(t.dir, path); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

func (t *Task) Status() engine.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) Results() (*engine.Payload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case engine.Complete:
		return t.payload, nil
	case engine.Error:
		return nil, &engine.TaskError{TaskID: t.id, Message: t.errMsg}
	default:
		return nil, fmt.Errorf("task %d is %s", t.id, t.status)
	}
}

func (t *Task) recordID() string {
	return fmt.Sprintf("%s-%05d", t.jobID, t.id)
}

func (t *Task) apply(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = stateToStatus(rec.State)
	switch t.status {
	case engine.Complete:
		t.payload = &engine.Payload{Artifact: rec.Artifact, Data: []byte(rec.ResultJSON)}
	case engine.Error:
		t.errMsg = rec.Error
	}
}

func stateToStatus(state string) engine.Status {
	switch state {
	case StateRunning:
		return engine.Running
	case StateSucceeded:
		return engine.Complete
	case StateFailed:
		return engine.Error
	default:
		return engine.Pending
	}
}
