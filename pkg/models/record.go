package models

import "time"

// AuditRecord is an immutable log entry describing one state transition or
// action. Records are append-only; ordering is by timestamp with ties broken
// by the sequence number assigned at append time.
type AuditRecord struct {
	// ID is the record identifier.
	ID string `json:"id"`
	// Seq is the monotonically increasing sequence number assigned on append.
	Seq int64 `json:"seq"`
	// ExecutionID is the execution this record belongs to.
	ExecutionID string `json:"execution_id"`
	// StepID is the related step, empty for execution-level events.
	StepID string `json:"step_id,omitempty"`
	// AgentID is the related agent, if any.
	AgentID string `json:"agent_id,omitempty"`
	// Action names what happened (e.g. "step_started", "retry").
	Action string `json:"action"`
	// Status is the resulting status, if the action changed one.
	Status string `json:"status,omitempty"`
	// Message provides additional human-readable context.
	Message string `json:"message,omitempty"`
	// Timestamp is when the action occurred.
	Timestamp time.Time `json:"timestamp"`
}

// CommunicationRecord tracks a directed message from one agent to another,
// detected in a step's output. The response is attached at most once; repeated
// attachments are ignored so duplicate delivery never double-counts.
type CommunicationRecord struct {
	// ID is the record identifier, derived from step id + target agent so
	// dispatch retries never create duplicates.
	ID string `json:"id"`
	// ExecutionID is the execution this record belongs to.
	ExecutionID string `json:"execution_id"`
	// FromAgent is the agent whose output contained the reference.
	FromAgent string `json:"from_agent"`
	// ToAgent is the referenced agent.
	ToAgent string `json:"to_agent"`
	// Message is the text directed at the target agent.
	Message string `json:"message"`
	// Response is the target agent's eventual reply, empty until answered.
	Response string `json:"response,omitempty"`
	// Timestamp is when the reference was detected.
	Timestamp time.Time `json:"timestamp"`
}

// Answered returns true if a response has been attached.
func (c *CommunicationRecord) Answered() bool {
	return c.Response != ""
}
