// Package models defines the shared entities of the orchestration engine:
// workflow templates, executions, steps, and the audit/communication records
// that describe what happened.
package models

import "time"

// ExecutionMode controls how runnable steps are dispatched.
type ExecutionMode string

const (
	// ModeSequential dispatches one runnable step at a time, in definition order.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel dispatches every runnable step concurrently, bounded by a
	// max-in-flight limit, refilling capacity as steps finish.
	ModeParallel ExecutionMode = "parallel"
	// ModeStaged dispatches one whole dependency stage at a time and holds a
	// hard barrier until every step in the stage is terminal.
	ModeStaged ExecutionMode = "staged"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeStaged:
		return true
	default:
		return false
	}
}

// ExecutionStatus represents the current state of an execution.
type ExecutionStatus string

const (
	// ExecutionPending indicates the execution has been created but not started.
	ExecutionPending ExecutionStatus = "pending"
	// ExecutionRunning indicates the control loop is driving the execution.
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionCompleted indicates every step completed successfully.
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionFailed indicates at least one step failed and no further
	// progress is possible.
	ExecutionFailed ExecutionStatus = "failed"
	// ExecutionCancelled indicates the execution was cancelled by the caller.
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// executionTransitions is the legal execution status transition table.
// Terminal states have no outgoing transitions.
var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending: {ExecutionRunning, ExecutionCancelled, ExecutionFailed},
	ExecutionRunning: {ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
}

// CanTransition reports whether moving from s to next is legal.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Execution is one running instance of a workflow, either instantiated from a
// template or built ad-hoc from a step list. Owned by the store; mutated only
// by the engine; never deleted.
type Execution struct {
	// ID is the opaque identifier generated at submission time.
	ID string `json:"id"`
	// TemplateID is the originating template, empty for ad-hoc executions.
	TemplateID string `json:"template_id,omitempty"`
	// Mode controls the dispatch policy for runnable steps.
	Mode ExecutionMode `json:"mode"`
	// Context is the opaque key-value bag passed to every step.
	Context map[string]string `json:"context,omitempty"`
	// Status is the current state of the execution.
	Status ExecutionStatus `json:"status"`
	// CreatedAt is when the execution was submitted.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the execution reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Steps are the execution's steps in definition order.
	Steps []*Step `json:"steps"`
}

// StepByID returns the step with the given id, or nil if not present.
func (e *Execution) StepByID(id string) *Step {
	for _, s := range e.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}
