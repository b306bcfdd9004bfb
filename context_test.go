package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCallStack(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, CallStackFromContext(ctx))
	require.False(t, OnCallStack(ctx, "root"))

	ctx = WithCallStack(ctx, []string{"root"})
	require.True(t, OnCallStack(ctx, "root"))
	require.False(t, OnCallStack(ctx, "child"))

	nested := WithCallStack(ctx, append(CallStackFromContext(ctx), "child"))
	require.True(t, OnCallStack(nested, "root"))
	require.True(t, OnCallStack(nested, "child"))

	// The parent context is untouched by the nested push
	require.False(t, OnCallStack(ctx, "child"))
}

func TestVariablesContext(t *testing.T) {
	_, ok := GetVariablesFromContext(context.Background())
	require.False(t, ok)

	workflow, err := New(Options{
		Name:   "ctx",
		States: []*State{{Name: "done", Terminal: true}},
	})
	require.NoError(t, err)
	run := NewRun(workflow, map[string]any{"k": "v"})

	ctx := WithVariables(context.Background(), run)
	container, ok := GetVariablesFromContext(ctx)
	require.True(t, ok)

	value, ok := container.GetVariable("k")
	require.True(t, ok)
	require.Equal(t, "v", value)

	container.SetVariable("added", 1)
	value, ok = run.GetVariable("added")
	require.True(t, ok)
	require.Equal(t, 1, value)
}
