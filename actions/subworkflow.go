package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/swissarmyhammer/flow"
)

// SubWorkflowOptions configures a sub-workflow action.
type SubWorkflowOptions struct {
	// Workflows resolves workflow names to definitions.
	Workflows flow.WorkflowRegistry

	// Actions is the registry the child executor runs with. Sharing the
	// parent registry gives nested workflows the same action set.
	Actions flow.ActionRegistry

	// Templates is the parent's template context.
	Templates *flow.TemplateContext

	Logger *slog.Logger
}

// SubWorkflowAction runs another workflow as a single action of the parent.
// The child gets only the explicitly mapped inputs; mapped outputs are
// merged back into the parent's variables when the child completes.
type SubWorkflowAction struct {
	workflows flow.WorkflowRegistry
	actions   flow.ActionRegistry
	templates *flow.TemplateContext
	logger    *slog.Logger
}

func NewSubWorkflowAction(opts SubWorkflowOptions) *SubWorkflowAction {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SubWorkflowAction{
		workflows: opts.Workflows,
		actions:   opts.Actions,
		templates: opts.Templates,
		logger:    logger,
	}
}

func (a *SubWorkflowAction) Name() string {
	return "sub_workflow"
}

func (a *SubWorkflowAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	name := stringParam(params, "workflow")
	if name == "" {
		return nil, flow.NewWorkflowError(flow.ErrorTypeConfiguration,
			"sub_workflow action requires 'workflow' parameter")
	}
	if a.workflows == nil {
		return nil, flow.NewWorkflowError(flow.ErrorTypeConfiguration,
			"sub_workflow action has no workflow registry")
	}

	// Recursion guard: the executor pushed every ancestor workflow onto the
	// call stack, so a repeat name means a cycle.
	if flow.OnCallStack(ctx, name) {
		return nil, flow.NewWorkflowError(flow.ErrorTypeValidation,
			fmt.Sprintf("workflow cycle detected: %q is already running in this call chain", name))
	}

	workflow, ok := a.workflows.Get(name)
	if !ok {
		return nil, flow.NewWorkflowError(flow.ErrorTypeConfiguration,
			fmt.Sprintf("unknown workflow: %q", name))
	}

	inputs := anyMapParam(params, "inputs")
	outputs := stringMapParam(params, "outputs")

	executor, err := flow.NewExecutor(flow.ExecutorOptions{
		Workflow:  workflow,
		Actions:   a.actions,
		Templates: a.templates,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, flow.WrapError(flow.ErrorTypeConfiguration, err)
	}

	result, runErr := executor.Run(ctx, inputs)
	if result == nil {
		return nil, flow.WrapError(flow.ErrorTypeExecution, runErr)
	}

	mapped := map[string]any{}
	for childKey, parentKey := range outputs {
		if value, ok := result.Variables[childKey]; ok {
			mapped[parentKey] = value
		}
	}

	if result.Status == flow.RunStatusCompleted {
		// Merge mapped outputs into the parent run's variables so later
		// states can reference them directly.
		if container, ok := flow.GetVariablesFromContext(ctx); ok {
			for key, value := range mapped {
				container.SetVariable(key, value)
			}
		}
		return map[string]any{
			"status":  string(result.Status),
			"run_id":  result.RunID,
			"outputs": mapped,
			"success": true,
		}, nil
	}

	cause := fmt.Sprintf("sub-workflow %q finished with status %s", name, result.Status)
	if runErr != nil {
		cause = fmt.Sprintf("%s: %v", cause, runErr)
	}
	return nil, flow.NewWorkflowError(flow.ErrorTypeExecution, cause)
}
