package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gridsweep/internal/engine/local"
)

// Worker drains the queue by executing claimed tasks with a local runner.
type Worker struct {
	Store        *Store
	Runner       *local.Runner
	Owner        string
	LeaseFor     time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (w *Worker) defaults() {
	if w.Owner == "" {
		hostname, _ := os.Hostname()
		w.Owner = fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
	}
	if w.LeaseFor == 0 {
		w.LeaseFor = 30 * time.Minute
	}
	if w.PollInterval == 0 {
		w.PollInterval = time.Second
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
}

// RunOnce claims and executes one task. It reports false when the queue was
// empty.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if w.Store == nil || w.Runner == nil {
		return false, errors.New("worker: store and runner are required")
	}
	w.defaults()

	rec, err := w.Store.ClaimNext(time.Now(), w.Owner, w.LeaseFor)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	if rec == nil {
		return false, nil
	}

	w.Logger.Info("task claimed", "task", rec.ID, "dir", rec.Dir)
	payload, runErr := w.Runner.Run(ctx, rec.Seq, rec.Dir)
	if runErr != nil {
		w.Logger.Warn("task failed", "task", rec.ID, "error", runErr)
		if err := w.Store.Fail(rec.ID, runErr); err != nil {
			return true, err
		}
		return true, nil
	}
	if err := w.Store.Succeed(rec.ID, payload.Data, payload.Artifact); err != nil {
		return true, err
	}
	w.Logger.Info("task succeeded", "task", rec.ID)
	return true, nil
}

// Run processes tasks until ctx is done. With drain set it returns as soon as
// the queue is empty. It returns the number of executed tasks.
func (w *Worker) Run(ctx context.Context, drain bool) (int, error) {
	w.defaults()
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	executed := 0
	for {
		if err := ctx.Err(); err != nil {
			return executed, nil
		}
		ran, err := w.RunOnce(ctx)
		if err != nil {
			return executed, err
		}
		if ran {
			executed++
			continue
		}
		if drain {
			return executed, nil
		}
		select {
		case <-ctx.Done():
			return executed, nil
		case <-ticker.C:
		}
	}
}
