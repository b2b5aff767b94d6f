// Package local runs sweep tasks as child processes on this machine with a
// bounded worker pool.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"gridsweep/internal/engine"
)

// Config configures a local engine.
type Config struct {
	Runner Runner
	// Workers bounds concurrent tasks; zero uses the CPU count.
	Workers int
	// KeepTaskDirs leaves task directories behind on cleanup.
	KeepTaskDirs bool
	Logger       *slog.Logger
}

// Engine is a process-pool engine. It owns at most one job at a time.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	job     *Job
	group   *errgroup.Group
	cancel  context.CancelFunc
	running int
}

// New returns a local engine.
func New(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// CreateJob prepares workdir and binds the engine to a new job.
func (e *Engine) CreateJob(workdir string) (engine.Job, error) {
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	job := &Job{dir: abs, keep: e.cfg.KeepTaskDirs}

	e.mu.Lock()
	e.job = job
	e.mu.Unlock()
	return job, nil
}

// Submit starts every pending task of the current job.
func (e *Engine) Submit(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil {
		return "", errors.New("local engine: no job created")
	}
	if e.group != nil {
		return "", errors.New("local engine: previous batch not joined")
	}

	pending := e.job.pending()
	batchCtx, cancel := context.WithCancel(ctx)
	group := &errgroup.Group{}
	group.SetLimit(e.cfg.Workers)
	for _, task := range pending {
		task.setStatus(engine.Running)
	}
	// Go blocks once the limit is reached, so feed the pool from a goroutine.
	e.group = group
	e.cancel = cancel
	e.running = len(pending)
	go func() {
		for _, task := range pending {
			task := task
			group.Go(func() error {
				e.execute(batchCtx, task)
				return nil
			})
		}
	}()

	e.logger.Debug("local batch submitted", "tasks", len(pending), "workers", e.cfg.Workers)
	return fmt.Sprintf("submitted %d tasks", len(pending)), nil
}

// Join waits for the submitted batch. If ctx ends first, the running tasks
// are killed and reaped before Join returns, so the engine can take the next
// batch.
func (e *Engine) Join(ctx context.Context) (string, error) {
	e.mu.Lock()
	group := e.group
	cancel := e.cancel
	count := e.running
	job := e.job
	e.mu.Unlock()
	if group == nil {
		return "nothing submitted", nil
	}

	// The feeding goroutine may still be scheduling tasks; wait until every
	// task was handed to the pool before waiting on the group.
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.waitTerminal()
		_ = group.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
		e.logger.Debug("local batch cancelled", "tasks", count)
		cancel()
		<-done
	case <-done:
		cancel()
	}

	e.mu.Lock()
	e.group = nil
	e.cancel = nil
	e.running = 0
	e.mu.Unlock()
	if err != nil {
		return "", err
	}

	failed := 0
	for _, task := range job.snapshot() {
		if task.Status() == engine.Error {
			failed++
		}
	}
	return fmt.Sprintf("%d tasks finished, %d failed", count, failed), nil
}

func (e *Engine) execute(ctx context.Context, task *Task) {
	payload, err := e.cfg.Runner.Run(ctx, task.id, task.dir)
	if err != nil {
		e.logger.Debug("task failed", "task", task.id, "error", err)
		task.finish(nil, err)
		return
	}
	task.finish(payload, nil)
}

// Job is the set of tasks of the current batch.
type Job struct {
	dir  string
	keep bool

	mu     sync.Mutex
	cond   *sync.Cond
	nextID int
	tasks  []*Task
}

// AddTask creates a task with its own directory below the job directory.
func (j *Job) AddTask() (engine.Task, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextID
	j.nextID++
	dir := filepath.Join(j.dir, fmt.Sprintf("task-%05d", id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}
	task := &Task{id: id, dir: dir, job: j}
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

// Cleanup drops the current tasks and, unless configured otherwise, their
// directories.
func (j *Job) Cleanup() error {
	j.mu.Lock()
	tasks := j.tasks
	j.tasks = nil
	j.mu.Unlock()
	if j.keep {
		return nil
	}
	var errs []error
	for _, t := range tasks {
		if err := os.RemoveAll(t.dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *Job) snapshot() []*Task {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*Task(nil), j.tasks...)
}

func (j *Job) pending() []*Task {
	var out []*Task
	for _, t := range j.snapshot() {
		if t.Status() == engine.Pending {
			out = append(out, t)
		}
	}
	return out
}

func (j *Job) waitTerminal() {
	j.mu.Lock()
	if j.cond == nil {
		j.cond = sync.NewCond(&j.mu)
	}
	for !j.allTerminalLocked() {
		j.cond.Wait()
	}
	j.mu.Unlock()
}

func (j *Job) allTerminalLocked() bool {
	for _, t := range j.tasks {
		if st := t.Status(); st == engine.Running {
			return false
		}
	}
	return true
}

func (j *Job) notify() {
	j.mu.Lock()
	if j.cond != nil {
		j.cond.Broadcast()
	}
	j.mu.Unlock()
}

// Task is a single local execution.
type Task struct {
	id  int
	dir string
	job *Job

	mu      sync.Mutex
	status  engine.Status
	payload *engine.Payload
	err     error
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
		return nil, t.err
	default:
		return nil, fmt.Errorf("task %d is %s", t.id, t.status)
	}
}

func (t *Task) setStatus(s engine.Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Task) finish(payload *engine.Payload, err error) {
	t.mu.Lock()
	if err != nil {
		t.status = engine.Error
		t.err = err
	} else {
		t.status = engine.Complete
		t.payload = payload
	}
	t.mu.Unlock()
	t.job.notify()
}
