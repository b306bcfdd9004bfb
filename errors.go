package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error type constants for classification and transition matching
const (
	// ErrorTypeAll acts as a wildcard that matches any error except fatal errors
	ErrorTypeAll = "all"

	// ErrorTypeConfiguration indicates unresolved agent or variable configuration
	ErrorTypeConfiguration = "configuration_error"

	// ErrorTypeValidation indicates a command rejected by security policy.
	// Always fatal for the action that produced it; never bypassed.
	ErrorTypeValidation = "validation_error"

	// ErrorTypeTimeout indicates an action exceeded its action timeout
	ErrorTypeTimeout = "timeout"

	// ErrorTypeExecution indicates a subprocess or model invocation failure
	ErrorTypeExecution = "execution_error"

	// ErrorTypeCondition indicates a transition condition failed to evaluate
	ErrorTypeCondition = "condition_error"

	// ErrorTypeFatal indicates a failure that must never be routed to a
	// recovery transition. Unknown errors default to execution errors so
	// workflow definitions can route them; an error known to be unroutable
	// should carry type=ErrorTypeFatal.
	ErrorTypeFatal = "fatal_error"
)

// WorkflowError represents a structured error with classification.
// It supports Go's error wrapping patterns with the Unwrap() method.
type WorkflowError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap supports errors.Is and errors.As
func (e *WorkflowError) Unwrap() error {
	return e.Wrapped
}

// NewWorkflowError creates a new WorkflowError with the specified type and
// cause. The type can be any string; its purpose is to be matched against
// transition conditions via MatchesErrorType.
func NewWorkflowError(errorType, cause string) *WorkflowError {
	return &WorkflowError{Type: errorType, Cause: cause}
}

// WrapError wraps an ordinary error as a WorkflowError of the given type.
func WrapError(errorType string, err error) *WorkflowError {
	return &WorkflowError{Type: errorType, Cause: err.Error(), Wrapped: err}
}

// ClassifyError classifies a regular error into a WorkflowError
func ClassifyError(err error) *WorkflowError {
	var workflowError *WorkflowError
	if errors.As(err, &workflowError) {
		return workflowError
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &WorkflowError{
			Type:    ErrorTypeTimeout,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	// Default to an execution error so definitions can route it
	return &WorkflowError{
		Type:    ErrorTypeExecution,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type pattern
func MatchesErrorType(err error, errorType string) bool {
	if err == nil {
		return false
	}
	wErr := ClassifyError(err)
	// Fatal errors are only matched by the ErrorTypeFatal pattern
	if wErr.Type == ErrorTypeFatal {
		return errorType == ErrorTypeFatal
	}
	if errorType == ErrorTypeAll {
		return true
	}
	return wErr.Type == errorType
}
