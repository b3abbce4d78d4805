package store

import (
	"database/sql"
	"fmt"

	"github.com/maestroflow/maestro/pkg/models"
)

// AppendAudit persists an audit record. The sequence number is assigned by
// the store at append time and written back to the record. Records are never
// updated or deleted afterwards.
func (db *DB) AppendAudit(r *models.AuditRecord) error {
	res, err := db.Exec(`
		INSERT INTO audit_records (id, execution_id, step_id, agent_id, action, status, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ExecutionID, r.StepID, r.AgentID, r.Action, r.Status, r.Message, formatTime(r.Timestamp))
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit sequence: %w", err)
	}
	r.Seq = seq
	return nil
}

// ListAudit returns an execution's audit records ordered by timestamp, ties
// broken by append sequence.
func (db *DB) ListAudit(executionID string) ([]models.AuditRecord, error) {
	rows, err := db.Query(`
		SELECT seq, id, execution_id, step_id, agent_id, action, status, message, timestamp
		FROM audit_records WHERE execution_id = ?
		ORDER BY timestamp, seq
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var r models.AuditRecord
		var stepID, agentID, status, message sql.NullString
		var ts string
		if err := rows.Scan(&r.Seq, &r.ID, &r.ExecutionID, &stepID, &agentID, &r.Action, &status, &message, &ts); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.StepID = stepID.String
		r.AgentID = agentID.String
		r.Status = status.String
		r.Message = message.String
		r.Timestamp, _ = parseTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateCommunication persists a communication record. Inserting an id that
// already exists is a no-op, so dispatch retries never duplicate records.
func (db *DB) CreateCommunication(r *models.CommunicationRecord) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO communication_records (id, execution_id, from_agent, to_agent, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.ExecutionID, r.FromAgent, r.ToAgent, r.Message, formatTime(r.Timestamp))
	if err != nil {
		return fmt.Errorf("create communication record: %w", err)
	}
	return nil
}

// AttachResponse attaches a response to a communication record. It is the only
// mutation permitted on communication records, and only applies if no response
// is attached yet; re-attaching is a no-op, guaranteeing idempotence under
// duplicate delivery.
func (db *DB) AttachResponse(commID, response string) error {
	_, err := db.Exec(`
		UPDATE communication_records SET response = ?
		WHERE id = ? AND (response IS NULL OR response = '')
	`, response, commID)
	if err != nil {
		return fmt.Errorf("attach response: %w", err)
	}
	return nil
}

// ListCommunications returns an execution's communication records, oldest first.
func (db *DB) ListCommunications(executionID string) ([]models.CommunicationRecord, error) {
	rows, err := db.Query(`
		SELECT id, execution_id, from_agent, to_agent, message, response, timestamp
		FROM communication_records WHERE execution_id = ?
		ORDER BY timestamp
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list communication records: %w", err)
	}
	defer rows.Close()

	var out []models.CommunicationRecord
	for rows.Next() {
		var r models.CommunicationRecord
		var message, response sql.NullString
		var ts string
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.FromAgent, &r.ToAgent, &message, &response, &ts); err != nil {
			return nil, fmt.Errorf("scan communication record: %w", err)
		}
		r.Message = message.String
		r.Response = response.String
		r.Timestamp, _ = parseTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
