package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/swissarmyhammer/flow"
)

// maxCaptureBytes bounds stdout and stderr capture per stream.
const maxCaptureBytes = 256 * 1024

// SecurityViolation describes a command rejected by policy.
type SecurityViolation struct {
	Rule   string
	Detail string
}

func (v *SecurityViolation) Error() string {
	return fmt.Sprintf("command rejected by security policy (%s): %s", v.Rule, v.Detail)
}

// SecurityValidator is consulted before any subprocess is spawned. A
// rejected command never executes.
type SecurityValidator interface {
	ValidateCommand(command string, workingDir string, env map[string]string) error
}

// denyPatterns is a minimal built-in deny list; a real deployment supplies
// its own validator with the full policy.
var denyPatterns = []string{
	"rm -rf /",
	"rm -fr /",
	"mkfs",
	"dd if=",
	"shutdown",
	"reboot",
	":(){",
	"> /dev/sd",
}

// unsafeEnvKeys are environment overrides that change subprocess behavior
// in ways the policy cannot reason about.
var unsafeEnvKeys = map[string]bool{
	"PATH":            true,
	"LD_PRELOAD":      true,
	"LD_LIBRARY_PATH": true,
	"IFS":             true,
}

// DefaultSecurityValidator implements the built-in rule set.
type DefaultSecurityValidator struct{}

func (v *DefaultSecurityValidator) ValidateCommand(command string, workingDir string, env map[string]string) error {
	normalized := strings.ToLower(strings.Join(strings.Fields(command), " "))
	for _, pattern := range denyPatterns {
		if strings.Contains(normalized, pattern) {
			return &SecurityViolation{Rule: "deny_list", Detail: command}
		}
	}
	if strings.Contains(workingDir, "..") {
		return &SecurityViolation{Rule: "path_traversal", Detail: workingDir}
	}
	for key := range env {
		if unsafeEnvKeys[strings.ToUpper(key)] {
			return &SecurityViolation{Rule: "unsafe_environment", Detail: key}
		}
	}
	return nil
}

// ShellAction executes a shell command with bounded output capture. The
// security validator runs before the subprocess is spawned; on timeout the
// subprocess is killed through the action context.
type ShellAction struct {
	validator SecurityValidator
}

// NewShellAction creates a shell action guarded by the given validator, or
// the built-in rule set when nil.
func NewShellAction(validator SecurityValidator) *ShellAction {
	if validator == nil {
		validator = &DefaultSecurityValidator{}
	}
	return &ShellAction{validator: validator}
}

func (a *ShellAction) Name() string {
	return "shell"
}

func (a *ShellAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	command := stringParam(params, "command")
	if command == "" {
		return nil, flow.NewWorkflowError(flow.ErrorTypeConfiguration, "shell action requires 'command' parameter")
	}
	workingDir := stringParam(params, "working_dir")
	environment := stringMapParam(params, "environment")

	// Policy gate runs before anything is spawned
	if err := a.validator.ValidateCommand(command, workingDir, environment); err != nil {
		var violation *SecurityViolation
		if errors.As(err, &violation) {
			return nil, flow.WrapError(flow.ErrorTypeValidation, violation)
		}
		return nil, flow.WrapError(flow.ErrorTypeValidation, err)
	}

	var cmd *exec.Cmd
	if args := stringSliceParam(params, "args"); len(args) > 0 {
		// Explicit args bypass the shell entirely
		cmd = exec.CommandContext(ctx, command, args...)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	if len(environment) > 0 {
		cmd.Env = os.Environ()
		for key, value := range environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
		}
	}

	stdout := newBoundedBuffer(maxCaptureBytes)
	stderr := newBoundedBuffer(maxCaptureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	exitCode := 0
	if runErr != nil {
		var exitError *exec.ExitError
		if errors.As(runErr, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return nil, flow.WrapError(flow.ErrorTypeExecution,
				fmt.Errorf("failed to execute command: %w", runErr))
		}
	}

	return map[string]any{
		"stdout":    strings.TrimSpace(stdout.String()),
		"stderr":    strings.TrimSpace(stderr.String()),
		"exit_code": exitCode,
		"success":   exitCode == 0,
		"truncated": stdout.Truncated() || stderr.Truncated(),
	}, nil
}

// boundedBuffer captures up to max bytes and discards the rest, recording
// that truncation happened.
type boundedBuffer struct {
	max       int
	data      []byte
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - len(b.data)
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.data = append(b.data, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return string(b.data)
}

func (b *boundedBuffer) Truncated() bool {
	return b.truncated
}
