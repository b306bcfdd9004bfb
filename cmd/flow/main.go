package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/swissarmyhammer/flow"
	"github.com/swissarmyhammer/flow/actions"
)

var version = "dev"

type runOptions struct {
	vars       []string
	workflows  []string
	configPath string
	timeout    time.Duration
	jsonOutput bool
	verbose    bool
	logsDir    string
}

func main() {
	root := &cobra.Command{
		Use:           "flow",
		Short:         "Run YAML-defined state machine workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newValidateCommand(), newVersionCommand())
	if err := root.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(args[0], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Initial variable in key=value form (repeatable)")
	cmd.Flags().StringArrayVar(&opts.workflows, "workflow", nil, "Additional workflow file registered as a sub-workflow target (repeatable)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to project configuration YAML")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Overall run timeout (e.g. 30s, 5m)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Emit the run result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.logsDir, "logs-dir", "", "Directory for per-run action logs")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			color.Green("Workflow %q is valid (%d states, initial %q)",
				workflow.Name(), len(workflow.States()), workflow.Initial().Name)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func runWorkflow(path string, opts *runOptions) error {
	logger := setupLogger(opts)

	workflow, err := flow.LoadFile(path)
	if err != nil {
		return err
	}
	color.Cyan("Workflow: %s", workflow.Name())
	if workflow.Description() != "" {
		color.White("%s", workflow.Description())
	}

	variables, err := parseVariables(opts.vars)
	if err != nil {
		return err
	}

	var project *flow.ProjectConfig
	if opts.configPath != "" {
		project, err = flow.LoadProjectConfig(opts.configPath)
		if err != nil {
			return err
		}
	}
	templates := flow.NewTemplateContext(flow.TemplateContextOptions{Project: project})

	var actionLogger flow.ActionLogger = flow.NewNullActionLogger()
	if opts.logsDir != "" {
		actionLogger = flow.NewFileActionLogger(opts.logsDir)
		color.Blue("Action logs: %s", opts.logsDir)
	}

	workflows := flow.NewMemoryWorkflowRegistry()
	if err := registerWorkflows(workflows, path, opts.workflows); err != nil {
		return err
	}

	registry := actions.DefaultRegistry(actions.RegistryOptions{
		Templates: templates,
		Workflows: workflows,
		Logger:    logger,
	})

	// Interrupt requests cancellation; the run unwinds between states.
	abort := make(chan struct{})
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		color.Yellow("Interrupt received, cancelling run")
		close(abort)
	}()

	executor, err := flow.NewExecutor(flow.ExecutorOptions{
		Workflow:     workflow,
		Actions:      registry,
		Templates:    templates,
		Logger:       logger,
		ActionLogger: actionLogger,
		AbortSignal:  abort,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	result, runErr := executor.Run(ctx, variables)
	if result == nil {
		return runErr
	}
	showResult(result, runErr, opts)
	if runErr != nil {
		os.Exit(1)
	}
	return nil
}

// registerWorkflows fills the sub-workflow registry with the main file's
// directory siblings plus any explicitly listed workflow files.
func registerWorkflows(registry flow.WorkflowRegistry, mainPath string, extra []string) error {
	siblings, err := flow.LoadDirectory(filepath.Dir(mainPath))
	if err != nil {
		return err
	}
	for _, workflow := range siblings {
		if err := registry.Register(workflow); err != nil {
			return err
		}
	}
	for _, path := range extra {
		workflow, err := flow.LoadFile(path)
		if err != nil {
			return err
		}
		if err := registry.Register(workflow); err != nil {
			return err
		}
	}
	return nil
}

func setupLogger(opts *runOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func parseVariables(pairs []string) (map[string]any, error) {
	variables := map[string]any{}
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid variable %q, expected key=value", pair)
		}
		// JSON first so numbers and booleans keep their types
		var parsed any
		if err := json.Unmarshal([]byte(parts[1]), &parsed); err != nil {
			parsed = parts[1]
		}
		variables[parts[0]] = parsed
	}
	return variables, nil
}

func showResult(result *flow.RunResult, runErr error, opts *runOptions) {
	if opts.jsonOutput {
		payload := map[string]any{
			"run_id":    result.RunID,
			"workflow":  result.Workflow,
			"status":    result.Status,
			"variables": result.Variables,
			"history":   result.History,
			"duration":  result.Duration.String(),
		}
		if runErr != nil {
			payload["error"] = runErr.Error()
		}
		encoded, err := json.MarshalIndent(payload, "", "  ")
		if err == nil {
			fmt.Println(string(encoded))
		}
		return
	}

	color.White("Run %s finished in %v", result.RunID, result.Duration.Round(time.Millisecond))
	switch result.Status {
	case flow.RunStatusCompleted:
		color.Green("Status: %s", result.Status)
	case flow.RunStatusCancelled:
		color.Yellow("Status: %s", result.Status)
	default:
		color.Red("Status: %s", result.Status)
	}
	if runErr != nil {
		color.Red("Error: %v", runErr)
	}
	color.White("Path: %s", strings.Join(result.History, " -> "))
}
