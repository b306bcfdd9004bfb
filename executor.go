package flow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ExecutorOptions configures an Executor
type ExecutorOptions struct {
	Workflow     *Workflow
	Actions      ActionRegistry
	Templates    *TemplateContext
	Timeouts     ActionTimeouts
	Logger       *slog.Logger
	Callbacks    RunCallbacks
	ActionLogger ActionLogger

	// AbortSignal requests cancellation from outside the run (interrupt,
	// abort marker). It is observed between states, never mid-action.
	AbortSignal <-chan struct{}
}

// Executor drives one workflow run through its state graph: it executes the
// current state's action under the resolved timeout, routes the result
// through the state's transitions, and repeats until a terminal state is
// reached. Single-threaded and cooperative; one Executor drives one run.
type Executor struct {
	workflow     *Workflow
	actions      ActionRegistry
	templates    *TemplateContext
	timeouts     ActionTimeouts
	logger       *slog.Logger
	callbacks    RunCallbacks
	actionLogger ActionLogger
	abortSignal  <-chan struct{}

	mutex   sync.Mutex
	started bool
}

// NewExecutor creates an executor for one run of the given workflow.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if opts.Actions == nil {
		opts.Actions = ActionRegistry{}
	}
	if opts.Templates == nil {
		opts.Templates = NewTemplateContext(TemplateContextOptions{})
	}
	if opts.Timeouts.ActionTimeout == 0 {
		opts.Timeouts = DefaultActionTimeouts()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseRunCallbacks{}
	}
	if opts.ActionLogger == nil {
		opts.ActionLogger = NewNullActionLogger()
	}
	return &Executor{
		workflow:     opts.Workflow,
		actions:      opts.Actions,
		templates:    opts.Templates,
		timeouts:     opts.Timeouts,
		logger:       opts.Logger,
		callbacks:    opts.Callbacks,
		actionLogger: opts.ActionLogger,
		abortSignal:  opts.AbortSignal,
	}, nil
}

func (e *Executor) start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.started {
		return fmt.Errorf("executor already started")
	}
	e.started = true
	return nil
}

// Run executes the workflow to a terminal status. The returned RunResult
// always carries the final status, variables, and history; the returned
// error is non-nil only when the run terminated as Failed.
func (e *Executor) Run(ctx context.Context, initialVariables map[string]any) (*RunResult, error) {
	if err := e.start(); err != nil {
		return nil, err
	}
	if OnCallStack(ctx, e.workflow.Name()) {
		return nil, NewWorkflowError(ErrorTypeExecution,
			fmt.Sprintf("workflow call cycle detected: %q is already executing", e.workflow.Name()))
	}

	run := NewRun(e.workflow, initialVariables)
	logger := e.logger.With("run_id", run.ID(), "workflow", e.workflow.Name())

	ctx = WithLogger(ctx, logger)
	ctx = WithVariables(ctx, run)
	ctx = WithCompiler(ctx, e.templates.Compiler())
	stack := CallStackFromContext(ctx)
	pushed := make([]string, len(stack), len(stack)+1)
	copy(pushed, stack)
	ctx = WithCallStack(ctx, append(pushed, e.workflow.Name()))

	run.setStarted(time.Now())
	logger.Info("run started", "initial_state", run.CurrentState())

	e.callbacks.BeforeRun(ctx, &RunEvent{
		RunID:        run.ID(),
		WorkflowName: e.workflow.Name(),
		Status:       run.Status(),
		StartTime:    run.StartTime(),
		Variables:    run.Variables(),
	})

	inputs := run.Variables()
	finalStatus, finalErr := e.drive(ctx, run, inputs)
	endTime := time.Now()
	run.setFinished(finalStatus, endTime, finalErr)

	// Cancellation is logged distinctly from organic failure
	switch finalStatus {
	case RunStatusCancelled:
		logger.Warn("run cancelled", "history", run.History())
	case RunStatusFailed:
		logger.Error("run failed", "error", finalErr, "history", run.History())
	case RunStatusDeadLetter:
		logger.Warn("run routed to dead letter", "history", run.History())
	default:
		logger.Info("run completed", "history", run.History())
	}

	e.callbacks.AfterRun(ctx, &RunEvent{
		RunID:        run.ID(),
		WorkflowName: e.workflow.Name(),
		Status:       finalStatus,
		StartTime:    run.StartTime(),
		EndTime:      endTime,
		Duration:     endTime.Sub(run.StartTime()),
		Variables:    run.Variables(),
		History:      run.History(),
		Error:        finalErr,
	})

	result := &RunResult{
		RunID:     run.ID(),
		Workflow:  e.workflow.Name(),
		Status:    finalStatus,
		Variables: run.Variables(),
		History:   run.History(),
		Duration:  endTime.Sub(run.StartTime()),
		Err:       finalErr,
	}
	if finalStatus == RunStatusFailed {
		return result, finalErr
	}
	return result, nil
}

// drive is the state machine loop. It returns the terminal status and, for
// failed runs, the terminating error.
func (e *Executor) drive(ctx context.Context, run *Run, inputs map[string]any) (RunStatus, error) {
	for {
		// Cancellation is observed between states, never mid-action
		if e.aborted(ctx) {
			return RunStatusCancelled, nil
		}

		state, ok := e.workflow.GetState(run.CurrentState())
		if !ok {
			return RunStatusFailed, NewWorkflowError(ErrorTypeExecution,
				fmt.Sprintf("state %q not found", run.CurrentState()))
		}

		result := e.executeState(ctx, run, state)

		if state.Terminal {
			if !result.Success {
				return RunStatusFailed, result.Error
			}
			return state.FinalStatus(), nil
		}

		next, err := e.selectTransition(ctx, run, state, result, inputs)
		if err != nil {
			return RunStatusFailed, err
		}
		run.setCurrentState(next)
	}
}

// aborted reports whether the external abort signal fired or the context
// was cancelled.
func (e *Executor) aborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if e.abortSignal == nil {
		return false
	}
	select {
	case <-e.abortSignal:
		return true
	default:
		return false
	}
}

// executeState runs the state's bound action and stores its output. A state
// with no action passes through with a synthetic success result. Action
// errors are returned as ordinary results for the transition machinery, not
// propagated as Go errors.
func (e *Executor) executeState(ctx context.Context, run *Run, state *State) *ActionResult {
	spec := state.Action
	if spec == nil {
		return SuccessResult(nil)
	}

	logger, _ := GetLoggerFromContext(ctx)
	if logger == nil {
		logger = e.logger
	}

	action, ok := e.actions[spec.Type]
	if !ok {
		return FailureResult(NewWorkflowError(ErrorTypeConfiguration,
			fmt.Sprintf("unknown action type %q in state %q", spec.Type, state.Name)))
	}

	params, err := e.templates.EvaluateParameters(ctx, spec.Parameters, run.Variables())
	if err != nil {
		return FailureResult(WrapError(ErrorTypeExecution, err))
	}

	timeout := e.timeouts.For(spec)
	startTime := time.Now()

	e.callbacks.BeforeAction(ctx, &ActionEvent{
		RunID:        run.ID(),
		WorkflowName: e.workflow.Name(),
		StateName:    state.Name,
		ActionType:   spec.Type,
		Parameters:   params,
		StartTime:    startTime,
	})

	if spec.Type == "wait" {
		run.setStatus(RunStatusWaiting)
	}
	result := e.executeAction(ctx, action, params, timeout)
	run.setStatus(RunStatusRunning)

	endTime := time.Now()
	duration := endTime.Sub(startTime)

	if result.Success {
		if spec.Store != "" {
			run.SetVariable(spec.Store, result.Output)
		}
		logger.Info("action completed", "state", state.Name, "action", spec.Type,
			"duration", duration)
	} else {
		logger.Warn("action failed", "state", state.Name, "action", spec.Type,
			"error_type", result.Error.Type, "error", result.Error.Cause)
	}

	e.callbacks.AfterAction(ctx, &ActionEvent{
		RunID:        run.ID(),
		WorkflowName: e.workflow.Name(),
		StateName:    state.Name,
		ActionType:   spec.Type,
		Parameters:   params,
		Result:       result,
		StartTime:    startTime,
		EndTime:      endTime,
		Duration:     duration,
	})

	entry := &ActionLogEntry{
		RunID:      run.ID(),
		StateName:  state.Name,
		ActionType: spec.Type,
		Parameters: params,
		Output:     result.Output,
		StartTime:  startTime,
		Duration:   duration.Seconds(),
	}
	if result.Error != nil {
		entry.Error = result.Error.Error()
	}
	if logErr := e.actionLogger.LogAction(ctx, entry); logErr != nil {
		logger.Error("failed to log action", "error", logErr)
	}

	return result
}

// executeAction runs the action bounded by the resolved timeout. On expiry
// the result is produced immediately without waiting on the in-flight call;
// cancelling the action context is the cleanup trigger for whatever the
// action has in flight (subprocess kill, generation abort).
func (e *Executor) executeAction(ctx context.Context, action Action, params map[string]any, timeout time.Duration) *ActionResult {
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := action.Execute(actionCtx, params)
		done <- outcome{output: output, err: err}
	}()

	select {
	case <-actionCtx.Done():
		return FailureResult(&WorkflowError{
			Type:    ErrorTypeTimeout,
			Cause:   fmt.Sprintf("action %q timed out after %s", action.Name(), timeout),
			Wrapped: actionCtx.Err(),
		})
	case o := <-done:
		if o.err != nil {
			return FailureResult(ClassifyError(o.err))
		}
		return SuccessResult(o.output)
	}
}

// selectTransition evaluates the state's transitions in declaration order
// against the action result and current variables. The first truthy
// condition wins. No matching transition in a non-terminal state is an
// unreachable workflow definition and fails the run.
func (e *Executor) selectTransition(ctx context.Context, run *Run, state *State, result *ActionResult, inputs map[string]any) (string, error) {
	globals := map[string]any{
		"state":  run.Variables(),
		"inputs": inputs,
		"result": result.Globals(),
	}

	for _, transition := range state.Transitions {
		if transition.Condition == "" {
			return transition.Target, nil
		}
		compiled, err := e.templates.Compiler().Compile(ctx, transition.Condition)
		if err != nil {
			return "", &WorkflowError{
				Type:    ErrorTypeCondition,
				Cause:   fmt.Sprintf("failed to compile condition %q: %s", transition.Condition, err),
				Wrapped: err,
			}
		}
		value, err := compiled.Evaluate(ctx, globals)
		if err != nil {
			return "", &WorkflowError{
				Type:    ErrorTypeCondition,
				Cause:   fmt.Sprintf("failed to evaluate condition %q: %s", transition.Condition, err),
				Wrapped: err,
			}
		}
		if value.IsTruthy() {
			return transition.Target, nil
		}
	}

	return "", NewWorkflowError(ErrorTypeExecution,
		fmt.Sprintf("no matching transition from state %q", state.Name))
}
