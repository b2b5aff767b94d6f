package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gridsweep/internal/audit"
	"gridsweep/internal/workspace"
)

const appName = "gridsweep"

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: parameter grid sweeps over external simulations\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init    Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  run     Run a sweep definition")
		fmt.Fprintln(os.Stderr, "  worker  Execute queued sweep tasks")
		fmt.Fprintln(os.Stderr, "  report  Compare sweep reports")
		fmt.Fprintln(os.Stderr, "  status  Show queue and recent sweep events")
		fmt.Fprintln(os.Stderr, "  help    Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	var cmdErr error
	switch args[0] {
	case "init":
		cmdErr = runInit(args[1:], workspacePath)
	case "run":
		cmdErr = runSweep(args[1:], workspacePath)
	case "worker":
		cmdErr = runWorker(args[1:], workspacePath)
	case "report":
		cmdErr = runReport(args[1:], workspacePath)
	case "status":
		cmdErr = runStatus(args[1:], workspacePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, cmdErr)
		os.Exit(1)
	}
}

func resolveWorkspace(root string) (*workspace.Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("--workspace is required")
	}
	return workspace.Resolve(root)
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	format := fs.String("format", "yaml", "Example sweep format: yaml or hcl")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var exampleName, exampleBody string
	switch *format {
	case "yaml":
		exampleName, exampleBody = "example.yml", exampleYAMLSweep
	case "hcl":
		exampleName, exampleBody = "example.hcl", exampleHCLSweep
	default:
		return fmt.Errorf("unknown format: %s", *format)
	}
	if strings.TrimSpace(workspacePath) == "" {
		return fmt.Errorf("--workspace is required")
	}

	root, err := workspace.ResolveRoot(workspacePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}

	logger := audit.NewLogger(ws.AuditDBPath)
	if err := logger.LogEvent("cli", "workspace_init_started", map[string]any{"workspace": ws.Root}); err != nil {
		fmt.Fprintln(os.Stderr, "audit log failed:", err)
	}
	var finishErr error
	defer func() {
		finishPayload := map[string]any{"workspace": ws.Root}
		if finishErr != nil {
			finishPayload["error"] = finishErr.Error()
		}
		_ = logger.LogEvent("cli", "workspace_init_finished", finishPayload)
	}()

	if err := ws.EnsureDirs(); err != nil {
		finishErr = err
		return finishErr
	}
	examplePath := filepath.Join(ws.SweepsDir, exampleName)
	if err := writeFileIfMissing(examplePath, exampleBody); err != nil {
		finishErr = err
		return finishErr
	}

	fmt.Fprintf(os.Stdout, "Initialized workspace: %s\n", ws.Root)
	fmt.Fprintln(os.Stdout, "Next steps:")
	fmt.Fprintf(os.Stdout, "  %s run --workspace %s sweeps/%s\n", appName, ws.Root, exampleName)
	fmt.Fprintf(os.Stdout, "  %s status --workspace %s\n", appName, ws.Root)
	return nil
}

func writeFileIfMissing(path string, contents string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure dir for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

const exampleYAMLSweep = `name: example
batch_size: 2
axes:
  - name: x1
    label: First
    lower: 0
    upper: 1
    steps: 2
  - name: x2
    label: Second
    lower: 10
    upper: 20
    steps: 2
objectives:
  - name: torque
    label: Torque / Nm
model:
  point_template: |
    x1={{ param "x1" }}
    x2={{ param "x2" }}
engine:
  type: local
  workers: 2
  timeout: 1m
  command:
    - sh
    - -c
    - |
      . ./model.script
      awk -v a="$x1" -v b="$x2" 'BEGIN { printf "{\"torque\": %g}\n", a + b }' > "$GRIDSWEEP_RESULT"
`

const exampleHCLSweep = `name       = "example"
batch_size = 2

axis "x1" {
  label = "First"
  lower = 0
  upper = 1
  steps = 2
}

axis "x2" {
  label = "Second"
  lower = 10
  upper = 20
  steps = 2
}

objective "torque" {
  label = "Torque / Nm"
}

model {
  point_template = <<-EOT
    x1={{ param "x1" }}
    x2={{ param "x2" }}
  EOT
}

engine "local" {
  workers = 2
  timeout = "1m"
  command = [
    "sh", "-c",
    ". ./model.script && awk -v a=\"$x1\" -v b=\"$x2\" 'BEGIN { printf \"{\\\"torque\\\": %g}\\n\", a + b }' > \"$GRIDSWEEP_RESULT\"",
  ]
}
`
