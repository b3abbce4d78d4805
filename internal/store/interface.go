package store

import (
	"io"

	"github.com/maestroflow/maestro/pkg/models"
)

// ExecutionStore handles execution-level persistence operations.
type ExecutionStore interface {
	CreateExecution(e *models.Execution) error
	GetExecution(id string) (*models.Execution, error)
	UpdateExecutionStatus(id string, status models.ExecutionStatus) error
	ListExecutions(limit int) ([]models.Execution, error)
	RecoverStale() (int64, error)
}

// StepStore handles step-level persistence operations.
type StepStore interface {
	GetStep(executionID, stepID string) (*models.Step, error)
	UpdateStep(s *models.Step) error
	UpdateStepStatus(executionID, stepID string, status models.StepStatus) error
}

// AuditStore handles append-only audit records.
type AuditStore interface {
	AppendAudit(r *models.AuditRecord) error
	ListAudit(executionID string) ([]models.AuditRecord, error)
}

// CommStore handles communication records.
type CommStore interface {
	CreateCommunication(r *models.CommunicationRecord) error
	AttachResponse(commID, response string) error
	ListCommunications(executionID string) ([]models.CommunicationRecord, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the full persistence interface the engine works against.
// This lets the engine run on any backend without depending on the concrete
// SQLite implementation. It composes focused sub-interfaces for modularity.
type Store interface {
	io.Closer
	Migrator
	ExecutionStore
	StepStore
	AuditStore
	CommStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store          = (*DB)(nil)
	_ Migrator       = (*DB)(nil)
	_ ExecutionStore = (*DB)(nil)
	_ StepStore      = (*DB)(nil)
	_ AuditStore     = (*DB)(nil)
	_ CommStore      = (*DB)(nil)
)
