package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Options are used to configure a workflow.
type Options struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Initial     string         `json:"initial,omitempty" yaml:"initial,omitempty"`
	States      []*State       `json:"states" yaml:"states"`
	Variables   map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	Path        string         `json:"path,omitempty" yaml:"path,omitempty"`
}

// Workflow is the immutable declaration of a process as a graph of states
// with conditional transitions. Purely data: no behavior beyond lookup.
type Workflow struct {
	name             string
	description      string
	path             string
	initial          *State
	states           []*State
	statesByName     map[string]*State
	initialVariables map[string]any
}

// New returns a new Workflow configured with the given options.
func New(opts Options) (*Workflow, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("workflow name required")
	}
	if len(opts.States) == 0 {
		return nil, fmt.Errorf("states required")
	}

	statesByName := make(map[string]*State, len(opts.States))
	for _, state := range opts.States {
		if state.Name == "" {
			return nil, fmt.Errorf("state name required")
		}
		if _, exists := statesByName[state.Name]; exists {
			return nil, fmt.Errorf("duplicate state name %q", state.Name)
		}
		statesByName[state.Name] = state
	}

	if err := validateWorkflowStates(statesByName); err != nil {
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}

	initialName := opts.Initial
	if initialName == "" {
		initialName = opts.States[0].Name
	}
	initial, ok := statesByName[initialName]
	if !ok {
		return nil, fmt.Errorf("initial state %q not found", initialName)
	}

	return &Workflow{
		name:             opts.Name,
		description:      opts.Description,
		path:             opts.Path,
		initial:          initial,
		states:           opts.States,
		statesByName:     statesByName,
		initialVariables: opts.Variables,
	}, nil
}

// Name returns the workflow name
func (w *Workflow) Name() string {
	return w.name
}

// Description returns the workflow description
func (w *Workflow) Description() string {
	return w.description
}

// Path returns the file path this workflow was loaded from, if any
func (w *Workflow) Path() string {
	return w.path
}

// Initial returns the designated initial state
func (w *Workflow) Initial() *State {
	return w.initial
}

// States returns the workflow states in declaration order
func (w *Workflow) States() []*State {
	return w.states
}

// GetState returns a state by name
func (w *Workflow) GetState(name string) (*State, bool) {
	state, ok := w.statesByName[name]
	return state, ok
}

// StateNames returns the sorted names of all states in the workflow
func (w *Workflow) StateNames() []string {
	names := make([]string, 0, len(w.statesByName))
	for name := range w.statesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitialVariables returns the variables declared by the workflow itself.
// Run-level initial variables take precedence over these.
func (w *Workflow) InitialVariables() map[string]any {
	return w.initialVariables
}

// validateWorkflowStates guarantees that every transition target resolves
// and that terminal statuses name a terminal run status.
func validateWorkflowStates(statesByName map[string]*State) error {
	for _, state := range statesByName {
		for _, transition := range state.Transitions {
			if transition.Target == "" {
				return fmt.Errorf("state %q has a transition with no target", state.Name)
			}
			if _, ok := statesByName[transition.Target]; !ok {
				return fmt.Errorf("transition to state %q not found", transition.Target)
			}
		}
		if state.Terminal && state.Status != "" && !state.Status.IsTerminal() {
			return fmt.Errorf("state %q declares non-terminal status %q", state.Name, state.Status)
		}
		if !state.Terminal && len(state.Transitions) == 0 {
			return fmt.Errorf("non-terminal state %q has no transitions", state.Name)
		}
	}
	return nil
}

// LoadFile loads a workflow from a YAML file
func LoadFile(path string) (*Workflow, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	var opts Options
	if err := yaml.Unmarshal(yamlData, &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow file: %w", err)
	}
	opts.Path = path
	return New(opts)
}

// LoadDirectory loads every workflow YAML file in a directory, so siblings
// of a workflow file are available as sub-workflow targets. YAML files that
// do not define a workflow, such as project configuration, are skipped.
func LoadDirectory(dir string) ([]*Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow directory: %w", err)
	}
	var workflows []*Workflow
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		workflow, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		workflows = append(workflows, workflow)
	}
	return workflows, nil
}

// LoadString loads a workflow from a YAML string
func LoadString(data string) (*Workflow, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return New(opts)
}
