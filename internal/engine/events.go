// Package engine drives executions from pending to a terminal state:
// computing the runnable set, dispatching steps per the execution mode,
// isolating failures to their branch, and reporting progress.
package engine

import "time"

// EventType represents the type of engine event.
type EventType string

const (
	// EventStepStarted indicates a step has entered running.
	EventStepStarted EventType = "step_started"
	// EventStepRetrying indicates a step attempt failed and will be retried.
	EventStepRetrying EventType = "step_retrying"
	// EventStepProgress carries an updated completion percentage.
	EventStepProgress EventType = "step_progress"
	// EventStepCompleted indicates a step completed successfully.
	EventStepCompleted EventType = "step_completed"
	// EventStepFailed indicates a step failed after exhausting its retries.
	EventStepFailed EventType = "step_failed"
	// EventStepSkipped indicates a step will never run because an upstream
	// dependency failed or the execution was cancelled.
	EventStepSkipped EventType = "step_skipped"
	// EventExecutionCompleted indicates every step completed.
	EventExecutionCompleted EventType = "execution_completed"
	// EventExecutionFailed indicates the execution finished with failures.
	EventExecutionFailed EventType = "execution_failed"
	// EventExecutionCancelled indicates the execution was cancelled.
	EventExecutionCancelled EventType = "execution_cancelled"
)

// Event is emitted by the engine at every status transition - never on a
// timer - so observers see each state change exactly once, in causal order.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// ExecutionID is the execution this event belongs to.
	ExecutionID string
	// StepID is the related step, empty for execution-level events.
	StepID string
	// AgentID is the related agent, if applicable.
	AgentID string
	// Status is the resulting status after the transition.
	Status string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Progress is the execution's completion percentage at emission time.
	Progress int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Publisher receives engine events and fans them out to observers. The engine
// only produces events; it never blocks waiting on a subscriber.
type Publisher interface {
	Publish(ev Event)
}
