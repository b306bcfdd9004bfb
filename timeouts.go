package flow

import (
	"time"
)

// DefaultActionTimeout bounds every action that does not override it. One
// uniform timeout applies to prompt, shell, wait, and sub-workflow actions;
// the legacy per-action-type timeout settings are gone.
const DefaultActionTimeout = 3600 * time.Second

// ActionTimeouts carries the single action timeout for a run. A per-state
// override replaces the value wholesale; it is never partially inherited.
type ActionTimeouts struct {
	ActionTimeout time.Duration
}

// DefaultActionTimeouts returns the built-in timeout configuration.
func DefaultActionTimeouts() ActionTimeouts {
	return ActionTimeouts{ActionTimeout: DefaultActionTimeout}
}

// WithTimeout returns a copy with the action timeout replaced.
func (t ActionTimeouts) WithTimeout(d time.Duration) ActionTimeouts {
	t.ActionTimeout = d
	return t
}

// For resolves the timeout for one bound action: the state's override if
// set, otherwise the run-level timeout.
func (t ActionTimeouts) For(spec *ActionSpec) time.Duration {
	if spec != nil && spec.Timeout > 0 {
		return spec.Timeout.Std()
	}
	if t.ActionTimeout > 0 {
		return t.ActionTimeout
	}
	return DefaultActionTimeout
}
