package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"gridsweep/internal/audit"
	"gridsweep/internal/config"
	"gridsweep/internal/engine"
	"gridsweep/internal/engine/local"
	"gridsweep/internal/engine/queue"
	"gridsweep/internal/grid"
	"gridsweep/internal/logging"
	"gridsweep/internal/model"
	"gridsweep/internal/notify"
	"gridsweep/internal/result"
	"gridsweep/internal/sweep"
	"gridsweep/internal/workspace"
)

const resultFileName = "result.json"

func runSweep(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	batchSize := fs.Int("batch-size", -1, "Override the batch size of the sweep")
	reportDir := fs.String("report-dir", "", "Report directory (default: reports/<run id>)")
	workers := fs.Int("workers", 0, "Override local engine workers")
	keepRaw := fs.Bool("keep-raw", false, "Store raw task payloads in the run directory")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	notifyFlag := fs.Bool("notify", false, "Send a desktop notification when the sweep ends")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s run --workspace <dir> [flags] <sweep file>", appName)
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}
	sweepPath, err := ws.ResolvePath(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolve sweep path: %w", err)
	}
	def, err := config.Load(sweepPath)
	if err != nil {
		return err
	}
	if *batchSize >= 0 {
		def.BatchSize = *batchSize
	}
	if *workers > 0 {
		def.Engine.Workers = *workers
	}

	logger := logging.New(*logLevel, *logFormat, os.Stderr)
	runID, runDir, err := ws.NewRunDir(def.Name, time.Now())
	if err != nil {
		return err
	}
	logger = logger.With("run", runID)

	reportPath, err := resolveReportDir(ws, *reportDir, def.ReportDir, runID)
	if err != nil {
		return err
	}

	tmpl, err := model.NewTemplate(def.Model)
	if err != nil {
		return err
	}
	eng, closeEngine, err := buildEngine(def, ws, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	auditLog := audit.NewLogger(ws.AuditDBPath)
	startPayload := map[string]any{
		"sweep":  def.Source,
		"run_id": runID,
		"engine": def.Engine.Type,
		"points": grid.Cardinality(grid.Sample(def.Axes)),
	}
	if err := auditLog.LogEvent("cli", "sweep_run_started", startPayload); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}

	stop := &sweep.StopFlag{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)
	releaseSignals := watchSignals(stop, cancel)
	defer releaseSignals()

	res, runErr := sweep.Run(ctx, sweep.Options{
		Name:       def.Name,
		RunID:      runID,
		Axes:       def.Axes,
		Objectives: def.Objectives,
		BatchSize:  def.BatchSize,
		Assembler:  tmpl,
		Engine:     eng,
		Stop:       stop,
		WorkDir:    filepath.Join(runDir, "work"),
		ReportDir:  reportPath,
		KeepRaw:    *keepRaw,
		Logger:     logger,
		Events:     auditLog,
		Progress: func(batch, total int) {
			fmt.Fprintf(os.Stderr, "........ %d / %d\n", batch, total)
		},
	})

	finishPayload := map[string]any{"run_id": runID}
	defer func() {
		_ = auditLog.LogEvent("cli", "sweep_run_finished", finishPayload)
	}()
	if res == nil {
		finishPayload["error"] = runErr.Error()
		return runErr
	}
	finishPayload["status"] = res.Status.String()

	if err := writeRunResult(runDir, res, *keepRaw); err != nil {
		finishPayload["error"] = err.Error()
		return err
	}
	printSummary(def, res, runDir)

	title, message := notify.FormatSweepComplete(def.Name, res.Status.String(), len(res.Grid), res.Failed)
	notifier := &notify.Notifier{Enabled: *notifyFlag}
	if err := notifier.Send(title, message); err != nil {
		logger.Warn("notification failed", "error", err)
	}

	if runErr != nil {
		finishPayload["error"] = runErr.Error()
		return runErr
	}
	if res.Status == result.StatusEmpty {
		return errors.New("sweep produced no usable result")
	}
	return nil
}

// resolveReportDir returns the report directory for a run. The flag wins over
// the sweep file. A named directory must already exist; only the default
// reports/<run id> is created here.
func resolveReportDir(ws *workspace.Workspace, flagValue, fileValue, runID string) (string, error) {
	dir := flagValue
	if dir == "" {
		dir = fileValue
	}
	if dir != "" {
		resolved, err := ws.ResolvePath(dir)
		if err != nil {
			return "", fmt.Errorf("resolve report dir: %w", err)
		}
		return resolved, nil
	}
	resolved := filepath.Join(ws.ReportsDir, runID)
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	return resolved, nil
}

func buildRunner(def *config.Sweep) local.Runner {
	return local.Runner{
		Command:    def.Engine.Command,
		Env:        def.Engine.Env,
		Timeout:    def.Engine.Timeout,
		ResultFile: def.Engine.ResultFile,
		Artifact:   def.Engine.Artifact,
	}
}

func buildEngine(def *config.Sweep, ws *workspace.Workspace, logger *slog.Logger) (engine.Engine, func(), error) {
	switch def.Engine.Type {
	case config.EngineQueue:
		store, err := queue.Open(ws.QueueDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open queue: %w", err)
		}
		eng, err := queue.New(queue.Config{
			Store:        store,
			Detached:     def.Engine.Detached,
			PollInterval: def.Engine.PollInterval,
			Logger:       logger,
		})
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return eng, func() { _ = store.Close() }, nil
	default:
		eng := local.New(local.Config{
			Runner:       buildRunner(def),
			Workers:      def.Engine.Workers,
			KeepTaskDirs: def.Engine.KeepTaskDirs,
			Logger:       logger,
		})
		return eng, func() {}, nil
	}
}

// watchSignals stops the sweep at the next batch boundary on the first
// interrupt and cancels the context on the second.
func watchSignals(stop *sweep.StopFlag, cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		interrupts := 0
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				interrupts++
				if interrupts == 1 {
					fmt.Fprintln(os.Stderr, "Stopping after the current batch (interrupt again to abort)")
					stop.Stop()
					continue
				}
				fmt.Fprintln(os.Stderr, "Aborting")
				cancel()
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func writeRunResult(runDir string, res *sweep.Result, keepRaw bool) error {
	data, err := json.MarshalIndent(res.Map(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, resultFileName), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if !keepRaw || len(res.Raw) == 0 {
		return nil
	}
	raw, err := json.MarshalIndent(res.Raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal raw payloads: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "raw.json"), append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write raw payloads: %w", err)
	}
	return nil
}

func printSummary(def *config.Sweep, res *sweep.Result, runDir string) {
	fmt.Fprintf(os.Stdout, "Sweep %s: %s\n", def.Name, res.Status)
	fmt.Fprintf(os.Stdout, "  points:  %s\n", humanize.Comma(int64(len(res.Grid))))
	if res.Failed > 0 {
		fmt.Fprintf(os.Stdout, "  failed:  %s\n", humanize.Comma(int64(res.Failed)))
	}
	if res.Skipped > 0 {
		fmt.Fprintf(os.Stdout, "  skipped: %s\n", humanize.Comma(int64(res.Skipped)))
	}
	if res.Tensor != nil {
		fmt.Fprintf(os.Stdout, "  shape:   %s\n", formatShape(res.Tensor.Shape))
	}
	fmt.Fprintf(os.Stdout, "  result:  %s\n", filepath.Join(runDir, resultFileName))
	if res.ReportPath != "" {
		fmt.Fprintf(os.Stdout, "  report:  %s\n", res.ReportPath)
	}
	if res.Status == result.StatusDetached {
		fmt.Fprintf(os.Stdout, "Start workers with: %s worker --workspace <dir> %s\n", appName, def.Source)
	}
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = humanize.Comma(int64(n))
	}
	return "[" + strings.Join(parts, " x ") + "]"
}

func runWorker(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	drain := fs.Bool("drain", false, "Exit once the queue is empty")
	lease := fs.Duration("lease", 30*time.Minute, "Lease duration for claimed tasks")
	poll := fs.Duration("poll", time.Second, "Poll interval when the queue is empty")
	owner := fs.String("owner", "", "Lease owner name (default: worker-<host>-<pid>)")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s worker --workspace <dir> [flags] <sweep file>", appName)
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}
	sweepPath, err := ws.ResolvePath(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolve sweep path: %w", err)
	}
	def, err := config.Load(sweepPath)
	if err != nil {
		return err
	}

	store, err := queue.Open(ws.QueueDBPath)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()

	logger := logging.New(*logLevel, *logFormat, os.Stderr)
	runner := buildRunner(def)
	worker := &queue.Worker{
		Store:        store,
		Runner:       &runner,
		Owner:        *owner,
		LeaseFor:     *lease,
		PollInterval: *poll,
		Logger:       logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	auditLog := audit.NewLogger(ws.AuditDBPath)
	_ = auditLog.LogEvent("cli", "worker_started", map[string]any{"sweep": def.Source, "drain": *drain})
	fmt.Fprintf(os.Stdout, "Worker started for queue: %s\n", ws.QueueDBPath)

	executed, err := worker.Run(ctx, *drain)
	finishPayload := map[string]any{"executed": executed}
	if err != nil {
		finishPayload["error"] = err.Error()
	}
	_ = auditLog.LogEvent("cli", "worker_finished", finishPayload)
	fmt.Fprintf(os.Stdout, "Executed %s %s\n", humanize.Comma(int64(executed)), english.PluralWord(executed, "task", ""))
	return err
}
