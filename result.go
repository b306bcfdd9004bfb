package flow

// ActionResult is the outcome of one action execution. Action errors are
// ordinary values routed through the same transition machinery as successes,
// so a workflow definition can send failures to a retry state or to a
// dead-letter state explicitly.
type ActionResult struct {
	Success bool           `json:"success"`
	Output  any            `json:"output,omitempty"`
	Error   *WorkflowError `json:"error,omitempty"`
}

// SuccessResult returns a successful ActionResult carrying the given output.
func SuccessResult(output any) *ActionResult {
	return &ActionResult{Success: true, Output: output}
}

// FailureResult returns a failed ActionResult carrying the given error.
func FailureResult(err *WorkflowError) *ActionResult {
	return &ActionResult{Success: false, Error: err}
}

// Globals returns the representation of this result exposed to transition
// conditions as the "result" global.
func (r *ActionResult) Globals() map[string]any {
	globals := map[string]any{
		"success":    r.Success,
		"error_type": "",
		"error":      "",
	}
	if r.Output != nil {
		globals["output"] = r.Output
	}
	if r.Error != nil {
		globals["error_type"] = r.Error.Type
		globals["error"] = r.Error.Cause
	}
	return globals
}
