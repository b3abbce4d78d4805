package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/maestroflow/maestro/pkg/models"
)

// ErrIllegalTransition indicates a status update that violates the legal
// transition table (e.g. completed -> running). The update is rejected and
// logged, never silently applied.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// CreateExecution persists a new execution and all of its steps.
func (db *DB) CreateExecution(e *models.Execution) error {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO executions (id, template_id, mode, context, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, e.TemplateID, string(e.Mode), string(ctxJSON), string(e.Status), formatTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("create execution: %w", err)
		}

		for _, s := range e.Steps {
			depsJSON, err := json.Marshal(s.DependsOn)
			if err != nil {
				return fmt.Errorf("marshal depends_on: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO steps (execution_id, id, agent_id, task_text, depends_on, status, retry_count, step_order)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, e.ID, s.ID, s.AgentID, s.TaskText, string(depsJSON), string(s.Status), s.RetryCount, s.Order)
			if err != nil {
				return fmt.Errorf("create step %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

// GetExecution retrieves an execution and its steps by ID.
// Returns ErrNotFound if the execution does not exist.
func (db *DB) GetExecution(id string) (*models.Execution, error) {
	row := db.QueryRow(`
		SELECT id, template_id, mode, context, status, created_at, completed_at
		FROM executions WHERE id = ?
	`, id)

	e, err := scanExecution(row)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT execution_id, id, agent_id, task_text, depends_on, status,
		       started_at, completed_at, output, error, retry_count, step_order
		FROM steps WHERE execution_id = ? ORDER BY step_order
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		e.Steps = append(e.Steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}

	return e, nil
}

// scanExecution scans an execution row.
func scanExecution(row *sql.Row) (*models.Execution, error) {
	var e models.Execution
	var templateID, ctxJSON sql.NullString
	var createdAt string
	var completedAt sql.NullString

	err := row.Scan(&e.ID, &templateID, &e.Mode, &ctxJSON, &e.Status, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	e.TemplateID = templateID.String
	if ctxJSON.Valid && ctxJSON.String != "" && ctxJSON.String != "null" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &e.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	e.CreatedAt, _ = parseTime(createdAt)
	e.CompletedAt = parseNullableTime(completedAt)
	return &e, nil
}

// scanStep scans a step row.
func scanStep(rows *sql.Rows) (*models.Step, error) {
	var s models.Step
	var depsJSON, startedAt, completedAt, output, errMsg sql.NullString

	err := rows.Scan(&s.ExecutionID, &s.ID, &s.AgentID, &s.TaskText, &depsJSON,
		&s.Status, &startedAt, &completedAt, &output, &errMsg, &s.RetryCount, &s.Order)
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	if depsJSON.Valid && depsJSON.String != "" && depsJSON.String != "null" {
		if err := json.Unmarshal([]byte(depsJSON.String), &s.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	s.StartedAt = parseNullableTime(startedAt)
	s.CompletedAt = parseNullableTime(completedAt)
	s.Output = output.String
	s.Error = errMsg.String
	return &s, nil
}

// UpdateExecutionStatus transitions an execution to a new status, validating
// the move against the legal transition table. Terminal statuses also set
// completed_at.
func (db *DB) UpdateExecutionStatus(id string, status models.ExecutionStatus) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var current models.ExecutionStatus
		row := tx.QueryRow("SELECT status FROM executions WHERE id = ?", id)
		if err := row.Scan(&current); err == sql.ErrNoRows {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("read execution status: %w", err)
		}

		if !current.CanTransition(status) {
			log.Printf("[store] rejected execution %s transition %s -> %s", id, current, status)
			return fmt.Errorf("execution %s: %s -> %s: %w", id, current, status, ErrIllegalTransition)
		}

		if status.Terminal() {
			_, err := tx.Exec("UPDATE executions SET status = ?, completed_at = ? WHERE id = ?",
				string(status), formatTime(time.Now()), id)
			return err
		}
		_, err := tx.Exec("UPDATE executions SET status = ? WHERE id = ?", string(status), id)
		return err
	})
}

// GetStep retrieves a single step.
func (db *DB) GetStep(executionID, stepID string) (*models.Step, error) {
	rows, err := db.Query(`
		SELECT execution_id, id, agent_id, task_text, depends_on, status,
		       started_at, completed_at, output, error, retry_count, step_order
		FROM steps WHERE execution_id = ? AND id = ?
	`, executionID, stepID)
	if err != nil {
		return nil, fmt.Errorf("get step: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrNotFound
	}
	return scanStep(rows)
}

// UpdateStep writes a step's mutable fields (status, timestamps, output,
// error, retry count), validating the status transition. Updates are keyed by
// execution_id + step_id so concurrent executions never collide.
func (db *DB) UpdateStep(s *models.Step) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var current models.StepStatus
		row := tx.QueryRow("SELECT status FROM steps WHERE execution_id = ? AND id = ?", s.ExecutionID, s.ID)
		if err := row.Scan(&current); err == sql.ErrNoRows {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("read step status: %w", err)
		}

		if current != s.Status && !current.CanTransition(s.Status) {
			log.Printf("[store] rejected step %s/%s transition %s -> %s", s.ExecutionID, s.ID, current, s.Status)
			return fmt.Errorf("step %s: %s -> %s: %w", s.ID, current, s.Status, ErrIllegalTransition)
		}

		var startedAt, completedAt any
		if s.StartedAt != nil {
			startedAt = formatTime(*s.StartedAt)
		}
		if s.CompletedAt != nil {
			completedAt = formatTime(*s.CompletedAt)
		}

		_, err := tx.Exec(`
			UPDATE steps SET status = ?, started_at = ?, completed_at = ?,
			       output = ?, error = ?, retry_count = ?
			WHERE execution_id = ? AND id = ?
		`, string(s.Status), startedAt, completedAt, s.Output, s.Error, s.RetryCount, s.ExecutionID, s.ID)
		return err
	})
}

// UpdateStepStatus transitions a step to a new status without touching the
// other fields.
func (db *DB) UpdateStepStatus(executionID, stepID string, status models.StepStatus) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var current models.StepStatus
		row := tx.QueryRow("SELECT status FROM steps WHERE execution_id = ? AND id = ?", executionID, stepID)
		if err := row.Scan(&current); err == sql.ErrNoRows {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("read step status: %w", err)
		}

		if current == status {
			return nil
		}
		if !current.CanTransition(status) {
			log.Printf("[store] rejected step %s/%s transition %s -> %s", executionID, stepID, current, status)
			return fmt.Errorf("step %s: %s -> %s: %w", stepID, current, status, ErrIllegalTransition)
		}

		_, err := tx.Exec("UPDATE steps SET status = ? WHERE execution_id = ? AND id = ?",
			string(status), executionID, stepID)
		return err
	})
}

// ListExecutions returns the most recent executions, newest first.
func (db *DB) ListExecutions(limit int) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, template_id, mode, context, status, created_at, completed_at
		FROM executions ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []models.Execution
	for rows.Next() {
		var e models.Execution
		var templateID, ctxJSON sql.NullString
		var createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&e.ID, &templateID, &e.Mode, &ctxJSON, &e.Status, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.TemplateID = templateID.String
		e.CreatedAt, _ = parseTime(createdAt)
		e.CompletedAt = parseNullableTime(completedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecoverStale marks executions left running by a crashed process as failed,
// along with their in-flight steps. The engine cannot resume mid-step; the
// stored terminal state is the recovery contract. Returns the number of
// executions recovered.
func (db *DB) RecoverStale() (int64, error) {
	var recovered int64
	err := db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE executions SET status = 'failed', completed_at = ?
			WHERE status = 'running'
		`, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("recover executions: %w", err)
		}
		recovered, _ = res.RowsAffected()

		_, err = tx.Exec(`
			UPDATE steps SET status = 'failed', error = 'orchestrator restarted mid-step'
			WHERE status = 'running'
		`)
		if err != nil {
			return fmt.Errorf("recover steps: %w", err)
		}
		return nil
	})
	return recovered, err
}
