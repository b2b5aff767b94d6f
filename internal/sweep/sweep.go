// Package sweep drives a parameter grid through an execution engine and
// assembles the scattered results into an objective tensor.
package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gridsweep/internal/engine"
	"gridsweep/internal/grid"
	"gridsweep/internal/logging"
	"gridsweep/internal/model"
	"gridsweep/internal/report"
	"gridsweep/internal/result"
)

// EventLogger records sweep lifecycle events. *audit.Logger satisfies it.
type EventLogger interface {
	LogEvent(actor string, eventType string, payload any) error
}

// Options configures one sweep run.
type Options struct {
	// Name identifies the sweep in logs and events.
	Name       string
	RunID      string
	Axes       []grid.Axis
	Objectives []grid.Objective
	// BatchSize is the target number of tasks per batch. Zero or less runs
	// the whole grid as one batch.
	BatchSize int
	Assembler model.Assembler
	Engine    engine.Engine
	// Mapper defaults to JSONMapper(Objectives).
	Mapper Mapper
	Stop   *StopFlag
	// WorkDir is handed to the engine and the base model builder.
	WorkDir string
	// ReportDir, when set, must exist and be empty. It receives the report
	// and one artifact directory per completed point.
	ReportDir string
	KeepRaw   bool
	Logger    *slog.Logger
	Events    EventLogger
	// Progress is called before each batch with its 1-based number.
	Progress func(batch, total int)
}

// Result is the outcome of a sweep.
type Result struct {
	Status     result.Status
	RunID      string
	Tensor     *result.Tensor
	Domain     [][]float64
	Grid       []grid.Point
	Outcomes   []result.Outcome
	Mutability model.Mutability
	// Failed counts points that ran but produced no outcome.
	Failed int
	// Skipped counts points never run because the sweep was stopped.
	Skipped    int
	ReportPath string
	Raw        []json.RawMessage
}

// Map returns the {"f": tensor, "x": domain} form of a result with a tensor,
// and an empty map otherwise.
func (r *Result) Map() map[string]any {
	if r == nil || r.Tensor == nil {
		return map[string]any{}
	}
	return map[string]any{
		"f": r.Tensor.Nested(),
		"x": r.Domain,
	}
}

// ConfigError reports a sweep that was rejected before any submission.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "sweep configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

const actor = "sweep"

type runner struct {
	opts   Options
	logger *slog.Logger
	mapper Mapper
	mode   model.Mutability
	base   []string
	res    *Result
	width  int
}

// Run evaluates every grid point of opts.Axes. Task failures degrade single
// points to NaN; only configuration and engine errors abort the sweep.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts.Stop.Reset()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	r := &runner{
		opts:   opts,
		logger: opts.Logger,
		mapper: opts.Mapper,
		width:  len(opts.Objectives),
	}
	if r.logger == nil {
		r.logger = logging.FromContext(ctx)
	}
	r.logger = r.logger.With("sweep", opts.Name)
	if r.mapper == nil {
		r.mapper = JSONMapper(opts.Objectives)
	}

	domain := grid.Sample(opts.Axes)
	points := grid.Expand(domain)
	r.res = &Result{
		RunID:    opts.RunID,
		Domain:   domain,
		Grid:     points,
		Outcomes: make([]result.Outcome, 0, len(points)),
	}

	if opts.ReportDir != "" {
		if err := report.CheckDir(opts.ReportDir); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}

	r.mode = model.DecideMutability(opts.Axes, opts.Assembler)
	r.res.Mutability = r.mode
	if r.mode == model.Immutable {
		base, err := opts.Assembler.BaseModel(ctx, opts.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("build base model: %w", err)
		}
		r.base = base
	}

	job, err := opts.Engine.CreateJob(opts.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	indices := make([]int, len(points))
	for i := range indices {
		indices[i] = i
	}
	batches := grid.Partition(indices, opts.BatchSize)
	detached := engine.IsDetached(opts.Engine)

	r.logger.Info("sweep started",
		"points", len(points),
		"batches", len(batches),
		"mode", r.mode.String(),
		"detached", detached,
	)
	r.event("sweep_started", map[string]any{
		"name":    opts.Name,
		"run_id":  opts.RunID,
		"points":  len(points),
		"batches": len(batches),
		"mode":    r.mode.String(),
	})

	for b, batch := range batches {
		if opts.Stop.Stopped() {
			return r.cancelled()
		}
		if opts.Progress != nil {
			opts.Progress(b+1, len(batches))
		}
		r.logger.Info("batch", "number", b+1, "of", len(batches), "size", len(batch))

		if err := job.Cleanup(); err != nil {
			return nil, fmt.Errorf("clean up job: %w", err)
		}
		slots, err := r.prepare(ctx, job, batch)
		if err != nil {
			return nil, err
		}

		status, err := opts.Engine.Submit(ctx)
		if err != nil {
			return nil, fmt.Errorf("submit batch %d: %w", b+1, err)
		}
		r.event("batch_submitted", map[string]any{"batch": b + 1, "tasks": countTasks(slots), "status": status})
		if detached {
			continue
		}

		status, err = opts.Engine.Join(ctx)
		if err != nil {
			return nil, fmt.Errorf("join batch %d: %w", b+1, err)
		}
		r.collect(batch, slots)
		r.event("batch_finished", map[string]any{"batch": b + 1, "status": status, "failed": r.res.Failed})
	}

	if detached {
		r.res.Status = result.StatusDetached
		r.logger.Info("sweep handed off to detached engine", "points", len(points))
		r.event("sweep_finished", map[string]any{"status": r.res.Status.String()})
		return r.res, nil
	}

	tensor, err := result.Assemble(r.res.Outcomes, domain)
	if err != nil {
		r.logger.Error("assemble result", "error", err)
		r.res.Status = result.StatusEmpty
		r.event("sweep_finished", map[string]any{"status": r.res.Status.String(), "error": err.Error()})
		return r.res, nil
	}
	r.res.Tensor = tensor
	r.res.Status = result.StatusComplete
	r.logger.Debug("tensor assembled", "shape", tensor.Shape)

	if opts.ReportDir != "" {
		path, err := report.WriteFile(opts.ReportDir, opts.Axes, opts.Objectives, tensor, points)
		if err != nil {
			return r.res, fmt.Errorf("write report: %w", err)
		}
		r.res.ReportPath = path
	}

	r.logger.Info("sweep finished", "points", len(points), "failed", r.res.Failed)
	r.event("sweep_finished", map[string]any{
		"status": r.res.Status.String(),
		"points": len(points),
		"failed": r.res.Failed,
		"report": r.res.ReportPath,
	})
	return r.res, nil
}

func (o Options) validate() error {
	if err := grid.Validate(o.Axes, o.Objectives); err != nil {
		return &ConfigError{Err: err}
	}
	if o.Assembler == nil {
		return &ConfigError{Err: errors.New("model assembler is required")}
	}
	if o.Engine == nil {
		return &ConfigError{Err: errors.New("engine is required")}
	}
	if strings.TrimSpace(o.WorkDir) == "" {
		return &ConfigError{Err: errors.New("work directory is required")}
	}
	return nil
}

// slot ties a grid point of the current batch to its task. A nil task means
// the model could not be built for the point.
type slot struct {
	task engine.Task
	err  error
}

func countTasks(slots []slot) int {
	n := 0
	for _, s := range slots {
		if s.task != nil {
			n++
		}
	}
	return n
}

func (r *runner) prepare(ctx context.Context, job engine.Job, batch []int) ([]slot, error) {
	slots := make([]slot, len(batch))
	for i, idx := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		params := model.Params(r.opts.Axes, r.res.Grid[idx])
		lines, err := r.opts.Assembler.PointModel(params, r.mode)
		if err != nil {
			slots[i].err = fmt.Errorf("build point model: %w", err)
			continue
		}

		task, err := job.AddTask()
		if err != nil {
			return nil, fmt.Errorf("add task: %w", err)
		}
		slots[i].task = task
		if r.mode == model.Immutable {
			for _, path := range r.base {
				if err := task.CopyFile(path); err != nil {
					slots[i].err = fmt.Errorf("attach base file: %w", err)
					break
				}
			}
		}
		if slots[i].err != nil {
			continue
		}
		script := []byte(strings.Join(lines, "\n") + "\n")
		if err := task.AddFile(r.opts.Assembler.ScriptName(), script); err != nil {
			slots[i].err = fmt.Errorf("write model script: %w", err)
		}
	}
	return slots, nil
}

func (r *runner) collect(batch []int, slots []slot) {
	for i, idx := range batch {
		s := slots[i]
		if s.err != nil {
			r.fail(idx, s.err)
			continue
		}
		if s.task.Status() != engine.Complete {
			_, err := s.task.Results()
			if err == nil {
				err = fmt.Errorf("task %d ended %s", s.task.ID(), s.task.Status())
			}
			r.fail(idx, err)
			continue
		}

		payload, err := s.task.Results()
		if err != nil {
			r.fail(idx, err)
			continue
		}
		r.keepArtifact(idx, payload)
		if r.opts.KeepRaw && json.Valid(payload.Data) {
			r.res.Raw = append(r.res.Raw, json.RawMessage(payload.Data))
		}

		outcome, err := r.mapper(payload)
		if err != nil {
			r.fail(idx, fmt.Errorf("map payload: %w", err))
			continue
		}
		if len(outcome) != r.width {
			r.fail(idx, fmt.Errorf("outcome has %d values, want %d", len(outcome), r.width))
			continue
		}
		r.res.Outcomes = append(r.res.Outcomes, outcome)
	}
}

func (r *runner) keepArtifact(idx int, payload *engine.Payload) {
	if r.opts.ReportDir == "" || payload.Artifact == "" {
		return
	}
	if _, err := report.CopyArtifact(r.opts.ReportDir, idx, payload.Artifact); err != nil {
		if errors.Is(err, report.ErrArtifactMissing) {
			r.logger.Debug("no artifact to keep", "point", idx)
			return
		}
		r.logger.Warn("keep artifact", "point", idx, "error", err)
	}
}

func (r *runner) fail(idx int, err error) {
	r.res.Outcomes = append(r.res.Outcomes, result.NaNOutcome(r.width))
	r.res.Failed++
	r.logger.Warn("point failed", "point", idx, "coords", []float64(r.res.Grid[idx]), "error", err)
	r.event("task_failed", map[string]any{"point": idx, "error": err.Error()})
}

func (r *runner) cancelled() (*Result, error) {
	total := len(r.res.Grid)
	done := len(r.res.Outcomes)
	r.logger.Info("sweep stopped, returning partial result", "done", done, "points", total)

	r.res.Skipped = total - done
	r.res.Outcomes = result.Pad(r.res.Outcomes, total, r.width)
	tensor, err := result.Assemble(r.res.Outcomes, r.res.Domain)
	if err != nil {
		r.logger.Error("assemble partial result", "error", err)
		r.res.Status = result.StatusEmpty
	} else {
		r.res.Tensor = tensor
		r.res.Status = result.StatusPartial
	}
	r.event("sweep_cancelled", map[string]any{
		"done":   done,
		"points": total,
		"status": r.res.Status.String(),
	})
	return r.res, nil
}

func (r *runner) event(eventType string, payload map[string]any) {
	if r.opts.Events == nil {
		return
	}
	if err := r.opts.Events.LogEvent(actor, eventType, payload); err != nil {
		r.logger.Warn("audit event", "type", eventType, "error", err)
	}
}
