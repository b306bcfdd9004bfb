package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/swissarmyhammer/flow"
)

// RegistryOptions configures the default action registry.
type RegistryOptions struct {
	Templates *flow.TemplateContext
	Workflows flow.WorkflowRegistry
	Validator SecurityValidator
	Logger    *slog.Logger
}

// DefaultRegistry builds a registry containing the four built-in actions.
func DefaultRegistry(opts RegistryOptions) flow.ActionRegistry {
	if opts.Templates == nil {
		opts.Templates = flow.NewTemplateContext(flow.TemplateContextOptions{})
	}
	if opts.Workflows == nil {
		opts.Workflows = flow.NewMemoryWorkflowRegistry()
	}
	registry := flow.ActionRegistry{}
	register := func(action flow.Action) {
		registry[action.Name()] = action
	}
	register(NewPromptAction(opts.Templates))
	register(NewShellAction(opts.Validator))
	register(NewWaitAction())
	register(NewSubWorkflowAction(SubWorkflowOptions{
		Workflows: opts.Workflows,
		Actions:   registry,
		Templates: opts.Templates,
		Logger:    opts.Logger,
	}))
	return registry
}

// remainingTimeout returns the time budget left on the context's deadline.
func remainingTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}

// stringParam extracts an optional string parameter.
func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return value
}

// boolParam extracts an optional bool parameter with a default.
func boolParam(params map[string]any, key string, fallback bool) bool {
	if value, ok := params[key].(bool); ok {
		return value
	}
	return fallback
}

// stringMapParam extracts an optional map parameter with string values.
func stringMapParam(params map[string]any, key string) map[string]string {
	raw, ok := params[key].(map[string]any)
	if !ok {
		return nil
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}

// stringSliceParam extracts an optional list parameter with string values.
func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// anyMapParam extracts an optional map parameter.
func anyMapParam(params map[string]any, key string) map[string]any {
	raw, ok := params[key].(map[string]any)
	if !ok {
		return nil
	}
	return raw
}
