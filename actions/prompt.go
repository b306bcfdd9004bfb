// Package actions provides the built-in action implementations: prompt
// generation, shell commands, sub-workflow runs, and user-input waits.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/swissarmyhammer/flow"
	"github.com/swissarmyhammer/flow/agent"
)

// PromptAction renders a prompt template and dispatches it to the resolved
// agent backend. The agent executor for a given resolved configuration is
// created once and reused so backends can keep sessions alive across calls.
type PromptAction struct {
	templates *flow.TemplateContext

	mutex     sync.Mutex
	executors map[string]agent.Executor
}

// NewPromptAction creates a prompt action resolving agent configuration
// through the given template context.
func NewPromptAction(templates *flow.TemplateContext) *PromptAction {
	return &PromptAction{
		templates: templates,
		executors: make(map[string]agent.Executor),
	}
}

func (a *PromptAction) Name() string {
	return "prompt"
}

// executorKey identifies a fully resolved configuration. Keying the cache on
// the whole config means a mid-run change, such as a different binary path,
// yields a fresh executor instead of silently reusing the first one built.
func executorKey(config agent.Config) string {
	data, err := json.Marshal(config)
	if err != nil {
		return string(config.Type)
	}
	return string(data)
}

func (a *PromptAction) executorFor(config agent.Config) (agent.Executor, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	key := executorKey(config)
	if executor, ok := a.executors[key]; ok {
		return executor, nil
	}
	executor, err := agent.ForConfig(config)
	if err != nil {
		return nil, err
	}
	a.executors[key] = executor
	return executor, nil
}

func (a *PromptAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	template, ok := params["prompt"].(string)
	if !ok || template == "" {
		return nil, flow.NewWorkflowError(flow.ErrorTypeConfiguration, "prompt action requires 'prompt' parameter")
	}

	container, ok := flow.GetVariablesFromContext(ctx)
	if !ok {
		return nil, flow.NewWorkflowError(flow.ErrorTypeConfiguration, "missing variable container in context")
	}
	variables := container.Variables()

	rendered, err := a.templates.Render(ctx, template, variables)
	if err != nil {
		return nil, flow.WrapError(flow.ErrorTypeExecution, fmt.Errorf("failed to render prompt: %w", err))
	}

	config, err := a.templates.GetAgentConfig(variables)
	if err != nil {
		return nil, err
	}
	executor, err := a.executorFor(config)
	if err != nil {
		return nil, flow.WrapError(flow.ErrorTypeConfiguration, err)
	}

	// The action context already carries the resolved deadline; the
	// execution context gets the remaining budget.
	ec := agent.NewExecutionContext(remainingTimeout(ctx), variables, config)

	response, err := executor.ExecutePrompt(ctx, rendered, ec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, flow.WrapError(flow.ErrorTypeExecution, err)
	}

	output := map[string]any{
		"content":       response.Content,
		"response_type": string(response.Type),
	}
	if len(response.Metadata) > 0 {
		output["metadata"] = response.Metadata
	}
	return output, nil
}
