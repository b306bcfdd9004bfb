package flow

import (
	"context"
	"time"
)

// RunCallbacks defines the callback interface for workflow run events
type RunCallbacks interface {
	// Run-level callbacks
	BeforeRun(ctx context.Context, event *RunEvent)
	AfterRun(ctx context.Context, event *RunEvent)

	// Action-level callbacks
	BeforeAction(ctx context.Context, event *ActionEvent)
	AfterAction(ctx context.Context, event *ActionEvent)
}

// RunEvent provides context for run-level events
type RunEvent struct {
	RunID        string
	WorkflowName string
	Status       RunStatus
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Variables    map[string]any
	History      []string
	Error        error
}

// ActionEvent provides context for action execution events
type ActionEvent struct {
	RunID        string
	WorkflowName string
	StateName    string
	ActionType   string
	Parameters   map[string]any
	Result       *ActionResult
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

// BaseRunCallbacks provides a default implementation that does nothing.
// Embed it to implement only the callbacks you need.
type BaseRunCallbacks struct{}

func (n *BaseRunCallbacks) BeforeRun(ctx context.Context, event *RunEvent) {
	// noop
}

func (n *BaseRunCallbacks) AfterRun(ctx context.Context, event *RunEvent) {
	// noop
}

func (n *BaseRunCallbacks) BeforeAction(ctx context.Context, event *ActionEvent) {
	// noop
}

func (n *BaseRunCallbacks) AfterAction(ctx context.Context, event *ActionEvent) {
	// noop
}

// CallbackChain fans events out to multiple callback implementations
type CallbackChain struct {
	callbacks []RunCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...RunCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback RunCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeRun(ctx context.Context, event *RunEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeRun(ctx, event)
	}
}

func (c *CallbackChain) AfterRun(ctx context.Context, event *RunEvent) {
	for _, callback := range c.callbacks {
		callback.AfterRun(ctx, event)
	}
}

func (c *CallbackChain) BeforeAction(ctx context.Context, event *ActionEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeAction(ctx, event)
	}
}

func (c *CallbackChain) AfterAction(ctx context.Context, event *ActionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterAction(ctx, event)
	}
}
