package engine

import (
	"math"

	"github.com/maestroflow/maestro/pkg/models"
)

// ProgressView is the derived progress of an execution. The percentage counts
// completed and skipped steps; failed steps never advance it, so an execution
// with failures tops out below 100%. Skipped steps are reported separately so
// observers can distinguish "done" from "given up due to upstream failure".
type ProgressView struct {
	Percent   int
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Running   int
}

// Progress computes an execution's completion percentage and step counts.
// A pure function over the step slice: no side effects, safe to call
// concurrently from multiple readers.
func Progress(steps []*models.Step) ProgressView {
	view := ProgressView{Total: len(steps)}
	if view.Total == 0 {
		return view
	}

	for _, s := range steps {
		switch s.Status {
		case models.StepCompleted:
			view.Completed++
		case models.StepFailed:
			view.Failed++
		case models.StepSkipped:
			view.Skipped++
		case models.StepRunning:
			view.Running++
		}
	}

	advanced := view.Completed + view.Skipped
	view.Percent = int(math.Round(100 * float64(advanced) / float64(view.Total)))
	return view
}

// ExecutionView is a read-only snapshot of an execution for callers of
// Status and the management surface.
type ExecutionView struct {
	ID       string                 `json:"id"`
	Status   models.ExecutionStatus `json:"status"`
	Mode     models.ExecutionMode   `json:"mode"`
	Progress ProgressView           `json:"progress"`
	Steps    []StepView             `json:"steps"`
}

// StepView is the per-step slice of an ExecutionView.
type StepView struct {
	ID         string            `json:"id"`
	AgentID    string            `json:"agent_id"`
	Status     models.StepStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
	RetryCount int               `json:"retry_count,omitempty"`
}

// NewExecutionView builds a snapshot from a loaded execution.
func NewExecutionView(e *models.Execution) ExecutionView {
	view := ExecutionView{
		ID:       e.ID,
		Status:   e.Status,
		Mode:     e.Mode,
		Progress: Progress(e.Steps),
	}
	for _, s := range e.Steps {
		view.Steps = append(view.Steps, StepView{
			ID:         s.ID,
			AgentID:    s.AgentID,
			Status:     s.Status,
			Error:      s.Error,
			RetryCount: s.RetryCount,
		})
	}
	return view
}
