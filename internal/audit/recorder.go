// Package audit records the immutable trail of execution events and
// inter-agent communication, and exports it for review.
package audit

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/maestroflow/maestro/internal/store"
	"github.com/maestroflow/maestro/pkg/models"
)

// Recorder appends audit and communication records. Persistence is
// best-effort relative to execution correctness: a failed append is logged
// and never propagated back into the scheduler.
type Recorder struct {
	audit store.AuditStore
	comms store.CommStore
}

// NewRecorder creates a Recorder over the given stores.
func NewRecorder(audit store.AuditStore, comms store.CommStore) *Recorder {
	return &Recorder{audit: audit, comms: comms}
}

// Event describes one auditable action.
type Event struct {
	ExecutionID string
	StepID      string
	AgentID     string
	Action      string
	Status      string
	Message     string
}

// Record appends an audit record for the event. Fire-and-forget: errors are
// logged, never returned.
func (r *Recorder) Record(ev Event) {
	rec := &models.AuditRecord{
		ID:          uuid.New().String(),
		ExecutionID: ev.ExecutionID,
		StepID:      ev.StepID,
		AgentID:     ev.AgentID,
		Action:      ev.Action,
		Status:      ev.Status,
		Message:     ev.Message,
		Timestamp:   time.Now(),
	}
	if err := r.audit.AppendAudit(rec); err != nil {
		log.Printf("[audit] WARNING: failed to persist audit record (action=%s execution=%s): %v",
			ev.Action, ev.ExecutionID, err)
	}
}

// Query returns an execution's audit records in timestamp order, ties broken
// by append sequence.
func (r *Recorder) Query(executionID string) ([]models.AuditRecord, error) {
	return r.audit.ListAudit(executionID)
}

// RecordCommunication creates a communication record for a directed agent
// reference found in step output. The id must be derived from step id +
// target agent so dispatch replays are deduplicated by the store.
// Fire-and-forget like Record.
func (r *Recorder) RecordCommunication(executionID, commID, fromAgent, toAgent, message string) {
	rec := &models.CommunicationRecord{
		ID:          commID,
		ExecutionID: executionID,
		FromAgent:   fromAgent,
		ToAgent:     toAgent,
		Message:     message,
		Timestamp:   time.Now(),
	}
	if err := r.comms.CreateCommunication(rec); err != nil {
		log.Printf("[audit] WARNING: failed to persist communication record %s: %v", rec.ID, err)
	}
}

// AttachResponse attaches a response to a communication record. A no-op if a
// response is already attached.
func (r *Recorder) AttachResponse(commID, response string) error {
	return r.comms.AttachResponse(commID, response)
}

// Communications returns an execution's communication records.
func (r *Recorder) Communications(executionID string) ([]models.CommunicationRecord, error) {
	return r.comms.ListCommunications(executionID)
}
