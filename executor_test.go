package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func linearWorkflow(t *testing.T) *Workflow {
	t.Helper()
	workflow, err := New(Options{
		Name: "linear",
		States: []*State{
			{
				Name:        "work",
				Action:      &ActionSpec{Type: "emit", Store: "output"},
				Transitions: []*Transition{{Target: "done"}},
			},
			{Name: "done", Terminal: true},
		},
	})
	require.NoError(t, err)
	return workflow
}

func TestExecutorRunsToCompletion(t *testing.T) {
	workflow := linearWorkflow(t)
	emit := NewActionFunction("emit", func(ctx context.Context, params map[string]any) (any, error) {
		return "value", nil
	})
	executor, err := NewExecutor(ExecutorOptions{
		Workflow: workflow,
		Actions:  NewActionRegistry(emit),
	})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, result.Status)
	require.Equal(t, []string{"work", "done"}, result.History)
	require.Equal(t, "value", result.Variables["output"])
	require.NotEmpty(t, result.RunID)
}

func TestExecutorRunsOnlyOnce(t *testing.T) {
	workflow := linearWorkflow(t)
	emit := NewActionFunction("emit", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})
	executor, err := NewExecutor(ExecutorOptions{
		Workflow: workflow,
		Actions:  NewActionRegistry(emit),
	})
	require.NoError(t, err)

	_, err = executor.Run(context.Background(), nil)
	require.NoError(t, err)

	_, err = executor.Run(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already started")
}

func TestExecutorErrorRouting(t *testing.T) {
	workflow, err := New(Options{
		Name: "routing",
		States: []*State{
			{
				Name:   "attempt",
				Action: &ActionSpec{Type: "flaky"},
				Transitions: []*Transition{
					{Target: "done", Condition: `result["success"]`},
					{Target: "recover", Condition: `result["error_type"] == "execution_error"`},
					{Target: "dead"},
				},
			},
			{
				Name:        "recover",
				Transitions: []*Transition{{Target: "done"}},
			},
			{Name: "done", Terminal: true},
			{Name: "dead", Terminal: true, Status: RunStatusDeadLetter},
		},
	})
	require.NoError(t, err)

	t.Run("action error routes by error type", func(t *testing.T) {
		flaky := NewActionFunction("flaky", func(ctx context.Context, params map[string]any) (any, error) {
			return nil, errors.New("boom")
		})
		executor, err := NewExecutor(ExecutorOptions{
			Workflow: workflow,
			Actions:  NewActionRegistry(flaky),
		})
		require.NoError(t, err)

		result, err := executor.Run(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, RunStatusCompleted, result.Status)
		require.Equal(t, []string{"attempt", "recover", "done"}, result.History)
	})

	t.Run("fatal error falls through to dead letter", func(t *testing.T) {
		flaky := NewActionFunction("flaky", func(ctx context.Context, params map[string]any) (any, error) {
			return nil, NewWorkflowError(ErrorTypeFatal, "unrecoverable")
		})
		executor, err := NewExecutor(ExecutorOptions{
			Workflow: workflow,
			Actions:  NewActionRegistry(flaky),
		})
		require.NoError(t, err)

		result, err := executor.Run(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, RunStatusDeadLetter, result.Status)
		require.Equal(t, []string{"attempt", "dead"}, result.History)
	})
}

func TestExecutorActionTimeout(t *testing.T) {
	workflow, err := New(Options{
		Name: "timeouts",
		States: []*State{
			{
				Name: "slow",
				Action: &ActionSpec{
					Type:    "sleep",
					Timeout: Duration(100 * time.Millisecond),
				},
				Transitions: []*Transition{
					{Target: "done", Condition: `result["success"]`},
					{Target: "timed_out", Condition: `result["error_type"] == "timeout"`},
				},
			},
			{Name: "done", Terminal: true},
			{Name: "timed_out", Terminal: true, Status: RunStatusFailed},
		},
	})
	require.NoError(t, err)

	released := make(chan struct{})
	sleep := NewActionFunction("sleep", func(ctx context.Context, params map[string]any) (any, error) {
		defer close(released)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	})
	executor, err := NewExecutor(ExecutorOptions{
		Workflow: workflow,
		Actions:  NewActionRegistry(sleep),
	})
	require.NoError(t, err)

	start := time.Now()
	result, err := executor.Run(context.Background(), nil)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, result.Status)
	require.Equal(t, []string{"slow", "timed_out"}, result.History)
	require.Less(t, elapsed, time.Second, "timeout must not wait on the in-flight action")

	// The action context was cancelled, so the goroutine unwinds promptly
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("in-flight action was not released by context cancellation")
	}
}

func TestExecutorNoMatchingTransition(t *testing.T) {
	workflow, err := New(Options{
		Name: "stuck",
		States: []*State{
			{
				Name:        "choose",
				Transitions: []*Transition{{Target: "done", Condition: `state["ready"] == true`}},
			},
			{Name: "done", Terminal: true},
		},
	})
	require.NoError(t, err)

	executor, err := NewExecutor(ExecutorOptions{Workflow: workflow})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), map[string]any{"ready": false})
	require.Error(t, err)
	require.True(t, MatchesErrorType(err, ErrorTypeExecution))
	require.Equal(t, RunStatusFailed, result.Status)
}

func TestExecutorConditionError(t *testing.T) {
	workflow, err := New(Options{
		Name: "bad-condition",
		States: []*State{
			{
				Name:        "choose",
				Transitions: []*Transition{{Target: "done", Condition: `no_such_name > 1`}},
			},
			{Name: "done", Terminal: true},
		},
	})
	require.NoError(t, err)

	executor, err := NewExecutor(ExecutorOptions{Workflow: workflow})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), nil)
	require.Error(t, err)
	require.True(t, MatchesErrorType(err, ErrorTypeCondition))
	require.Equal(t, RunStatusFailed, result.Status)
}

func TestExecutorUnknownActionType(t *testing.T) {
	workflow, err := New(Options{
		Name: "unknown-action",
		States: []*State{
			{
				Name:   "work",
				Action: &ActionSpec{Type: "nope"},
				Transitions: []*Transition{
					{Target: "done", Condition: `result["success"]`},
					{Target: "failed", Condition: `result["error_type"] == "configuration_error"`},
				},
			},
			{Name: "done", Terminal: true},
			{Name: "failed", Terminal: true, Status: RunStatusFailed},
		},
	})
	require.NoError(t, err)

	executor, err := NewExecutor(ExecutorOptions{Workflow: workflow})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, result.Status)
	require.Equal(t, []string{"work", "failed"}, result.History)
}

func TestExecutorAbortBetweenStates(t *testing.T) {
	abort := make(chan struct{})
	workflow, err := New(Options{
		Name: "abortable",
		States: []*State{
			{
				Name:        "first",
				Action:      &ActionSpec{Type: "trigger"},
				Transitions: []*Transition{{Target: "second"}},
			},
			{
				Name:        "second",
				Action:      &ActionSpec{Type: "trigger"},
				Transitions: []*Transition{{Target: "done"}},
			},
			{Name: "done", Terminal: true},
		},
	})
	require.NoError(t, err)

	var calls int
	trigger := NewActionFunction("trigger", func(ctx context.Context, params map[string]any) (any, error) {
		calls++
		close(abort)
		return nil, nil
	})
	executor, err := NewExecutor(ExecutorOptions{
		Workflow:    workflow,
		Actions:     NewActionRegistry(trigger),
		AbortSignal: abort,
	})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), nil)
	require.NoError(t, err, "cancellation is not a failure")
	require.Equal(t, RunStatusCancelled, result.Status)
	require.Equal(t, 1, calls, "the in-flight state finishes, the next never starts")
}

func TestExecutorContextCancellation(t *testing.T) {
	workflow := linearWorkflow(t)
	emit := NewActionFunction("emit", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})
	executor, err := NewExecutor(ExecutorOptions{
		Workflow: workflow,
		Actions:  NewActionRegistry(emit),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := executor.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, RunStatusCancelled, result.Status)
}

func TestExecutorTerminalStateAction(t *testing.T) {
	workflow, err := New(Options{
		Name: "terminal-action",
		States: []*State{
			{
				Name:     "finish",
				Terminal: true,
				Action:   &ActionSpec{Type: "emit", Store: "final"},
			},
		},
	})
	require.NoError(t, err)

	t.Run("success resolves to terminal status", func(t *testing.T) {
		emit := NewActionFunction("emit", func(ctx context.Context, params map[string]any) (any, error) {
			return "bye", nil
		})
		executor, err := NewExecutor(ExecutorOptions{
			Workflow: workflow,
			Actions:  NewActionRegistry(emit),
		})
		require.NoError(t, err)

		result, err := executor.Run(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, RunStatusCompleted, result.Status)
		require.Equal(t, "bye", result.Variables["final"])
	})

	t.Run("failure in a terminal state fails the run", func(t *testing.T) {
		emit := NewActionFunction("emit", func(ctx context.Context, params map[string]any) (any, error) {
			return nil, errors.New("broken")
		})
		executor, err := NewExecutor(ExecutorOptions{
			Workflow: workflow,
			Actions:  NewActionRegistry(emit),
		})
		require.NoError(t, err)

		result, err := executor.Run(context.Background(), nil)
		require.Error(t, err)
		require.Equal(t, RunStatusFailed, result.Status)
	})
}

func TestExecutorParameterRendering(t *testing.T) {
	workflow, err := New(Options{
		Name: "templated",
		Variables: map[string]any{
			"target": "prod",
		},
		States: []*State{
			{
				Name: "deploy",
				Action: &ActionSpec{
					Type: "capture",
					Parameters: map[string]any{
						"message": `deploying to ${state["target"]}`,
						"count":   `$(1 + 2)`,
					},
				},
				Transitions: []*Transition{{Target: "done"}},
			},
			{Name: "done", Terminal: true},
		},
	})
	require.NoError(t, err)

	var captured map[string]any
	capture := NewActionFunction("capture", func(ctx context.Context, params map[string]any) (any, error) {
		captured = params
		return nil, nil
	})
	executor, err := NewExecutor(ExecutorOptions{
		Workflow: workflow,
		Actions:  NewActionRegistry(capture),
	})
	require.NoError(t, err)

	_, err = executor.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "deploying to prod", captured["message"])
	require.EqualValues(t, 3, captured["count"])
}

func TestExecutorInitialVariablePrecedence(t *testing.T) {
	workflow, err := New(Options{
		Name: "vars",
		Variables: map[string]any{
			"env":   "dev",
			"extra": true,
		},
		States: []*State{
			{Name: "done", Terminal: true},
		},
	})
	require.NoError(t, err)

	executor, err := NewExecutor(ExecutorOptions{Workflow: workflow})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), map[string]any{"env": "prod"})
	require.NoError(t, err)
	require.Equal(t, "prod", result.Variables["env"], "run variables override workflow variables")
	require.Equal(t, true, result.Variables["extra"])
}

type recordingCallbacks struct {
	BaseRunCallbacks
	mutex  sync.Mutex
	events []string
}

func (c *recordingCallbacks) record(event string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.events = append(c.events, event)
}

func (c *recordingCallbacks) BeforeRun(ctx context.Context, event *RunEvent) {
	c.record("before_run")
}

func (c *recordingCallbacks) AfterRun(ctx context.Context, event *RunEvent) {
	c.record("after_run:" + string(event.Status))
}

func (c *recordingCallbacks) BeforeAction(ctx context.Context, event *ActionEvent) {
	c.record("before_action:" + event.StateName)
}

func (c *recordingCallbacks) AfterAction(ctx context.Context, event *ActionEvent) {
	c.record("after_action:" + event.StateName)
}

func TestExecutorCallbacks(t *testing.T) {
	workflow := linearWorkflow(t)
	emit := NewActionFunction("emit", func(ctx context.Context, params map[string]any) (any, error) {
		return "done", nil
	})
	callbacks := &recordingCallbacks{}
	executor, err := NewExecutor(ExecutorOptions{
		Workflow:  workflow,
		Actions:   NewActionRegistry(emit),
		Callbacks: callbacks,
	})
	require.NoError(t, err)

	_, err = executor.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{
		"before_run",
		"before_action:work",
		"after_action:work",
		"after_run:completed",
	}, callbacks.events)
}

func TestExecutorDeterministicRunsAreIdentical(t *testing.T) {
	workflow, err := New(Options{
		Name: "deterministic",
		States: []*State{
			{
				Name:   "double",
				Action: &ActionSpec{Type: "double", Store: "doubled"},
				Transitions: []*Transition{
					{Target: "done", Condition: `state["doubled"] == 84`},
					{Target: "failed"},
				},
			},
			{Name: "done", Terminal: true},
			{Name: "failed", Terminal: true, Status: RunStatusFailed},
		},
	})
	require.NoError(t, err)

	runOnce := func() *RunResult {
		double := NewActionFunction("double", func(ctx context.Context, params map[string]any) (any, error) {
			container, _ := GetVariablesFromContext(ctx)
			value, _ := container.GetVariable("n")
			return value.(int) * 2, nil
		})
		executor, err := NewExecutor(ExecutorOptions{
			Workflow: workflow,
			Actions:  NewActionRegistry(double),
		})
		require.NoError(t, err)
		result, err := executor.Run(context.Background(), map[string]any{"n": 42})
		require.NoError(t, err)
		return result
	}

	first := runOnce()
	second := runOnce()
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.History, second.History)
	require.Equal(t, first.Variables, second.Variables)
}

func TestExecutorRejectsWorkflowCycle(t *testing.T) {
	workflow := linearWorkflow(t)
	executor, err := NewExecutor(ExecutorOptions{Workflow: workflow})
	require.NoError(t, err)

	ctx := WithCallStack(context.Background(), []string{"linear"})
	_, err = executor.Run(ctx, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}
