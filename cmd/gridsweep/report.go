package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gridsweep/internal/audit"
	"gridsweep/internal/engine/queue"
	"gridsweep/internal/report"
	"gridsweep/internal/workspace"
)

func runReport(args []string, workspacePath string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		return fmt.Errorf("%s report: missing subcommand", appName)
	}

	switch args[0] {
	case "diff":
		return runReportDiff(args[1:], workspacePath)
	case "show":
		return runReportShow(args[1:], workspacePath)
	default:
		return fmt.Errorf("%s report: unknown subcommand %q", appName, args[0])
	}
}

// reportPath accepts either a report file or the directory holding it.
func reportPath(ws *workspace.Workspace, path string) (string, error) {
	resolved, err := ws.ResolvePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	if info.IsDir() {
		resolved = filepath.Join(resolved, report.FileName)
	}
	return resolved, nil
}

func runReportDiff(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("report diff", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: %s report diff <report A> <report B>", appName)
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	pathA, err := reportPath(ws, fs.Arg(0))
	if err != nil {
		return err
	}
	pathB, err := reportPath(ws, fs.Arg(1))
	if err != nil {
		return err
	}

	diff, err := report.DiffFiles(pathA, pathB)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(os.Stdout, "Reports are identical")
		return nil
	}
	fmt.Fprint(os.Stdout, diff)
	return nil
}

func runReportShow(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("report show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	column := fs.String("column", "", "Print only this column")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s report show [--column name] <report>", appName)
	}
	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	path, err := reportPath(ws, fs.Arg(0))
	if err != nil {
		return err
	}
	table, err := report.ReadFile(path)
	if err != nil {
		return err
	}

	if *column != "" {
		values, ok := table.Column(*column)
		if !ok {
			return fmt.Errorf("report has no column %q (have %s)", *column, strings.Join(table.Names, ", "))
		}
		for _, v := range values {
			fmt.Fprintln(os.Stdout, v)
		}
		return nil
	}

	fmt.Fprintf(os.Stdout, "Report: %s\n", path)
	fmt.Fprintf(os.Stdout, "Columns: %s\n", strings.Join(table.Names, ", "))
	fmt.Fprintf(os.Stdout, "Rows: %s\n", humanize.Comma(int64(len(table.Rows))))
	return nil
}

func runStatus(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("events", 10, "Number of recent events to show")
	jobID := fs.String("job", "", "Only count tasks of this queue job")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(ws.QueueDBPath); err == nil {
		store, err := queue.Open(ws.QueueDBPath)
		if err != nil {
			return fmt.Errorf("open queue: %w", err)
		}
		defer store.Close()

		counts, err := store.Counts(*jobID)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, "Queue:")
		states := make([]string, 0, len(counts))
		for state := range counts {
			states = append(states, state)
		}
		sort.Strings(states)
		if len(states) == 0 {
			fmt.Fprintln(os.Stdout, "  empty")
		}
		for _, state := range states {
			fmt.Fprintf(os.Stdout, "  %-10s %s\n", state, humanize.Comma(int64(counts[state])))
		}
		fmt.Fprintln(os.Stdout)
	}

	events, err := audit.NewLogger(ws.AuditDBPath).Recent(*limit)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Recent events (last %d):\n", len(events))
	for _, ev := range events {
		fmt.Fprintf(os.Stdout, "  %-12s %s [%s] %s\n", eventAge(ev.Timestamp), ev.Type, ev.Actor, compactJSON(ev.Payload))
	}
	return nil
}

func eventAge(ts string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return humanize.Time(t)
		}
	}
	return ts
}

func compactJSON(payload string) string {
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return payload
	}
	out, err := json.Marshal(v)
	if err != nil {
		return payload
	}
	return string(out)
}
