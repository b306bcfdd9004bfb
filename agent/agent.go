// Package agent provides the pluggable backends that turn a rendered prompt
// into a structured response: a subprocess-based CLI agent and an in-process
// local-model agent sharing one process-wide backend handle.
package agent

import (
	"context"
	"time"
)

// ResponseType discriminates a successful generation from a partial or
// failed one, so callers never have to string-match on content.
type ResponseType string

const (
	ResponseTypeSuccess ResponseType = "success"
	ResponseTypePartial ResponseType = "partial"
	ResponseTypeError   ResponseType = "error"
)

// Response is the structured result of a prompt execution.
type Response struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Type     ResponseType   `json:"response_type"`
}

// ExecutionContext is the immutable per-call bundle handed to an Executor:
// the resolved timeout, a read-only snapshot of the workflow variables, and
// the agent configuration. It is owned exclusively by the call that
// constructs it and is never shared across action invocations.
type ExecutionContext struct {
	Timeout   time.Duration
	Variables map[string]any
	Config    Config
}

// NewExecutionContext returns an ExecutionContext with its own copy of the
// given variables.
func NewExecutionContext(timeout time.Duration, variables map[string]any, config Config) ExecutionContext {
	snapshot := make(map[string]any, len(variables))
	for k, v := range variables {
		snapshot[k] = v
	}
	return ExecutionContext{
		Timeout:   timeout,
		Variables: snapshot,
		Config:    config,
	}
}

// StringVariable returns the named variable as a string, if present.
func (ec ExecutionContext) StringVariable(key string) (string, bool) {
	value, ok := ec.Variables[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// Executor converts a rendered prompt into a Response. Implementations are
// registered behind ForConfig; callers dispatch dynamically through this
// interface rather than switching on executor types.
type Executor interface {
	ExecutePrompt(ctx context.Context, prompt string, ec ExecutionContext) (*Response, error)
}
