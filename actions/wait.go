package actions

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/swissarmyhammer/flow"
)

// WaitAction pauses the run and optionally collects operator input. When
// stdin is not a terminal the configured default is returned immediately,
// so unattended runs never block on a prompt.
type WaitAction struct {
	input       io.Reader
	output      io.Writer
	interactive func() bool
}

// WaitOption customizes a wait action, used by tests to inject input.
type WaitOption func(*WaitAction)

// WithWaitInput replaces stdin and forces interactive mode.
func WithWaitInput(r io.Reader) WaitOption {
	return func(a *WaitAction) {
		a.input = r
		a.interactive = func() bool { return true }
	}
}

// WithWaitOutput replaces the prompt destination.
func WithWaitOutput(w io.Writer) WaitOption {
	return func(a *WaitAction) {
		a.output = w
	}
}

func NewWaitAction(opts ...WaitOption) *WaitAction {
	action := &WaitAction{
		input:  os.Stdin,
		output: os.Stderr,
		interactive: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		},
	}
	for _, opt := range opts {
		opt(action)
	}
	return action
}

func (a *WaitAction) Name() string {
	return "wait"
}

func (a *WaitAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	message := stringParam(params, "message")
	if message == "" {
		message = "Press enter to continue"
	}
	defaultValue := stringParam(params, "default")

	interactive := boolParam(params, "interactive", a.interactive())

	if !interactive {
		return map[string]any{
			"input":        defaultValue,
			"used_default": true,
		}, nil
	}

	fmt.Fprintf(a.output, "%s: ", message)

	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult, 1)
	go func() {
		reader := bufio.NewReader(a.input)
		line, err := reader.ReadString('\n')
		lines <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-lines:
		if result.err != nil && result.err != io.EOF {
			return nil, flow.WrapError(flow.ErrorTypeExecution,
				fmt.Errorf("failed to read input: %w", result.err))
		}
		input := strings.TrimSpace(result.line)
		if input == "" {
			return map[string]any{
				"input":        defaultValue,
				"used_default": true,
			}, nil
		}
		return map[string]any{
			"input":        input,
			"used_default": false,
		}, nil
	}
}
