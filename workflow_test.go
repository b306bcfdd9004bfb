package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkflowValidation(t *testing.T) {
	t.Run("name required", func(t *testing.T) {
		_, err := New(Options{States: []*State{{Name: "a", Terminal: true}}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "name required")
	})

	t.Run("states required", func(t *testing.T) {
		_, err := New(Options{Name: "empty"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "states required")
	})

	t.Run("duplicate state names rejected", func(t *testing.T) {
		_, err := New(Options{
			Name: "dup",
			States: []*State{
				{Name: "a", Terminal: true},
				{Name: "a", Terminal: true},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate state name")
	})

	t.Run("transition target must resolve", func(t *testing.T) {
		_, err := New(Options{
			Name: "dangling",
			States: []*State{
				{Name: "a", Transitions: []*Transition{{Target: "missing"}}},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `"missing" not found`)
	})

	t.Run("non-terminal state needs transitions", func(t *testing.T) {
		_, err := New(Options{
			Name: "stuck",
			States: []*State{
				{Name: "a"},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "no transitions")
	})

	t.Run("terminal status must be terminal", func(t *testing.T) {
		_, err := New(Options{
			Name: "bad-status",
			States: []*State{
				{Name: "a", Terminal: true, Status: RunStatusRunning},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "non-terminal status")
	})

	t.Run("initial defaults to first state", func(t *testing.T) {
		workflow, err := New(Options{
			Name: "default-initial",
			States: []*State{
				{Name: "start", Transitions: []*Transition{{Target: "end"}}},
				{Name: "end", Terminal: true},
			},
		})
		require.NoError(t, err)
		require.Equal(t, "start", workflow.Initial().Name)
	})

	t.Run("initial must exist", func(t *testing.T) {
		_, err := New(Options{
			Name:    "bad-initial",
			Initial: "nowhere",
			States:  []*State{{Name: "a", Terminal: true}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), `initial state "nowhere" not found`)
	})
}

func TestWorkflowAccessors(t *testing.T) {
	workflow, err := New(Options{
		Name:        "accessors",
		Description: "accessor coverage",
		Initial:     "b",
		Variables:   map[string]any{"k": 1},
		States: []*State{
			{Name: "a", Transitions: []*Transition{{Target: "b"}}},
			{Name: "b", Terminal: true},
		},
	})
	require.NoError(t, err)

	require.Equal(t, "accessors", workflow.Name())
	require.Equal(t, "accessor coverage", workflow.Description())
	require.Equal(t, "b", workflow.Initial().Name)
	require.Equal(t, []string{"a", "b"}, workflow.StateNames())
	require.Equal(t, map[string]any{"k": 1}, workflow.InitialVariables())

	state, ok := workflow.GetState("a")
	require.True(t, ok)
	require.Equal(t, "a", state.Name)
	_, ok = workflow.GetState("z")
	require.False(t, ok)
}

func TestLoadString(t *testing.T) {
	workflow, err := LoadString(`
name: yaml-load
description: loaded from yaml
initial: check
variables:
  retries: 3
states:
  - name: check
    action:
      type: shell
      store: checked
      timeout: 30s
      parameters:
        command: "true"
    transitions:
      - target: done
        condition: result["success"]
      - target: failed
  - name: done
    terminal: true
  - name: failed
    terminal: true
    status: failed
`)
	require.NoError(t, err)
	require.Equal(t, "yaml-load", workflow.Name())
	require.Equal(t, "check", workflow.Initial().Name)

	check, ok := workflow.GetState("check")
	require.True(t, ok)
	require.Equal(t, "shell", check.Action.Type)
	require.Equal(t, "checked", check.Action.Store)
	require.Len(t, check.Transitions, 2)

	failed, ok := workflow.GetState("failed")
	require.True(t, ok)
	require.True(t, failed.Terminal)
	require.Equal(t, RunStatusFailed, failed.FinalStatus())

	done, ok := workflow.GetState("done")
	require.True(t, ok)
	require.Equal(t, RunStatusCompleted, done.FinalStatus())
}

func TestLoadStringInvalid(t *testing.T) {
	_, err := LoadString(`{not yaml`)
	require.Error(t, err)
}
