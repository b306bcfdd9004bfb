package flow

import (
	"sync"
	"time"

	"go.jetify.com/typeid"
)

// NewRunID returns a new sortable unique identifier for a workflow run.
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the status of a workflow run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusRunning    RunStatus = "running"
	RunStatusWaiting    RunStatus = "waiting"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusDeadLetter RunStatus = "dead_letter"
)

// IsTerminal returns true if this status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusDeadLetter:
		return true
	}
	return false
}

// Run tracks the in-memory state of one workflow run: the current state,
// the run variables, and the visited-state history. Runs are mutated only by
// the Executor and are never persisted; a run exists for the lifetime of the
// process that started it.
type Run struct {
	id           string
	workflow     *Workflow
	currentState string
	variables    map[string]any
	status       RunStatus
	history      []string
	startTime    time.Time
	endTime      time.Time
	err          error
	mutex        sync.RWMutex
}

// NewRun creates a pending run of the given workflow seeded with the given
// variables. Workflow-declared variables are applied first, then the initial
// variables on top.
func NewRun(workflow *Workflow, initialVariables map[string]any) *Run {
	variables := make(map[string]any)
	for k, v := range workflow.InitialVariables() {
		variables[k] = v
	}
	for k, v := range initialVariables {
		variables[k] = v
	}
	return &Run{
		id:           NewRunID(),
		workflow:     workflow,
		currentState: workflow.Initial().Name,
		variables:    variables,
		status:       RunStatusPending,
	}
}

// ID returns the run identifier
func (r *Run) ID() string {
	return r.id
}

// Workflow returns the workflow definition this run executes
func (r *Run) Workflow() *Workflow {
	return r.workflow
}

// Status returns the current run status
func (r *Run) Status() RunStatus {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.status
}

func (r *Run) setStatus(status RunStatus) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.status = status
}

// CurrentState returns the name of the state the run is in
func (r *Run) CurrentState() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.currentState
}

func (r *Run) setCurrentState(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.currentState = name
	r.history = append(r.history, name)
}

// History returns the visited-state history in order, including the state
// the run is currently in.
func (r *Run) History() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	history := make([]string, len(r.history))
	copy(history, r.history)
	return history
}

// GetVariable returns the value of a run variable
func (r *Run) GetVariable(key string) (any, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	value, exists := r.variables[key]
	return value, exists
}

// SetVariable sets the value of a run variable
func (r *Run) SetVariable(key string, value any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.variables[key] = value
}

// Variables returns a copy of the run variables
func (r *Run) Variables() map[string]any {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	variables := make(map[string]any, len(r.variables))
	for k, v := range r.variables {
		variables[k] = v
	}
	return variables
}

// Err returns the error the run terminated with, if any
func (r *Run) Err() error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.err
}

func (r *Run) setFinished(status RunStatus, endTime time.Time, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.status = status
	r.endTime = endTime
	r.err = err
}

// StartTime returns the time the run started executing
func (r *Run) StartTime() time.Time {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.startTime
}

// EndTime returns the time the run reached a terminal status
func (r *Run) EndTime() time.Time {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.endTime
}

func (r *Run) setStarted(startTime time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.status = RunStatusRunning
	r.startTime = startTime
	r.history = append(r.history, r.currentState)
}

// RunResult carries the outcome of a workflow run: the final status, the
// final variables, the visited-state history, and the error chain on failure.
type RunResult struct {
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow"`
	Status    RunStatus      `json:"status"`
	Variables map[string]any `json:"variables"`
	History   []string       `json:"history"`
	Duration  time.Duration  `json:"duration"`
	Err       error          `json:"-"`
}
