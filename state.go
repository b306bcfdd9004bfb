package flow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so workflow files can declare timeouts as
// strings ("30s", "5m") or bare seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// Transition is a conditional edge from one state to another. Transitions
// are evaluated in declaration order after a state's action completes; the
// first one whose condition is truthy is taken. An empty condition always
// matches.
type Transition struct {
	Target    string `json:"target" yaml:"target"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ActionSpec declares the action bound to a state: the action type name, the
// context variable that receives the action output, the action parameters,
// and an optional per-state timeout override.
type ActionSpec struct {
	Type       string         `json:"type" yaml:"type"`
	Store      string         `json:"store,omitempty" yaml:"store,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Timeout    Duration       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// State represents a single state in a workflow. A state with no action is a
// pure routing state and produces a synthetic success result.
type State struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Action      *ActionSpec   `json:"action,omitempty" yaml:"action,omitempty"`
	Transitions []*Transition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Terminal    bool          `json:"terminal,omitempty" yaml:"terminal,omitempty"`

	// Status is the run status a terminal state resolves to. Defaults to
	// RunStatusCompleted. Ignored for non-terminal states.
	Status RunStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// FinalStatus returns the run status this terminal state resolves to.
func (s *State) FinalStatus() RunStatus {
	if s.Status != "" {
		return s.Status
	}
	return RunStatusCompleted
}
