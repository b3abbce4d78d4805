package models

import "time"

// StepStatus represents the current state of a step.
type StepStatus string

const (
	// StepPending indicates the step has not started.
	StepPending StepStatus = "pending"
	// StepBlocked indicates the step is waiting on incomplete dependencies.
	StepBlocked StepStatus = "blocked"
	// StepRunning indicates an agent is working on the step.
	StepRunning StepStatus = "running"
	// StepCompleted indicates the step finished successfully.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step failed after exhausting its retry budget.
	StepFailed StepStatus = "failed"
	// StepSkipped indicates a dependency failed or was cancelled, so the step
	// will never run.
	StepSkipped StepStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepBlocked, StepRunning, StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// stepTransitions is the legal step status transition table. A step may only
// enter running once every dependency is completed; skipped is reachable from
// any non-terminal state when an upstream dependency fails.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepBlocked, StepRunning, StepSkipped},
	StepBlocked: {StepPending, StepRunning, StepSkipped},
	StepRunning: {StepCompleted, StepFailed, StepSkipped},
}

// CanTransition reports whether moving from s to next is legal. Illegal
// transitions (e.g. completed -> running) are rejected by the store rather
// than silently applied.
func (s StepStatus) CanTransition(next StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Step is a unit of work within an execution, bound to one agent.
type Step struct {
	// ID is the step identifier, unique within its execution.
	ID string `json:"id"`
	// ExecutionID is a back-reference to the owning execution.
	ExecutionID string `json:"execution_id"`
	// AgentID identifies the agent that runs this step.
	AgentID string `json:"agent_id"`
	// TaskText is the instruction passed to the agent.
	TaskText string `json:"task_text"`
	// DependsOn lists step ids that must complete before this step runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// StartedAt is when the step entered running, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the step reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Output is the agent's raw output for a completed step.
	Output string `json:"output,omitempty"`
	// Error is the last error message for a failed step.
	Error string `json:"error,omitempty"`
	// RetryCount is how many times the step was retried before finishing.
	RetryCount int `json:"retry_count,omitempty"`
	// Order is the step's position in the template definition, used as the
	// deterministic tie-break within a stage.
	Order int `json:"order"`
}
