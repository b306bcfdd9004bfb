package flow

import (
	"context"
)

// Action represents a unit of work bound to a state. Implementations mutate
// the run context indirectly: the executor stores the returned output under
// the state's configured variable name.
type Action interface {

	// Name returns the action type name used in workflow definitions
	Name() string

	// Execute the action with the given rendered parameters.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// ActionRegistry is a map of action type names to actions
type ActionRegistry map[string]Action

// NewActionRegistry builds a registry from the given actions.
func NewActionRegistry(actions ...Action) ActionRegistry {
	registry := make(ActionRegistry, len(actions))
	for _, action := range actions {
		registry[action.Name()] = action
	}
	return registry
}

// ActionFunction wraps a function for use as an Action.
type ActionFunction struct {
	name string
	fn   func(ctx context.Context, params map[string]any) (any, error)
}

// NewActionFunction returns an Action for the given function.
func NewActionFunction(name string, fn func(ctx context.Context, params map[string]any) (any, error)) *ActionFunction {
	return &ActionFunction{name: name, fn: fn}
}

func (a *ActionFunction) Name() string {
	return a.name
}

func (a *ActionFunction) Execute(ctx context.Context, params map[string]any) (any, error) {
	return a.fn(ctx, params)
}
