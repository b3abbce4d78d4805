package models

import (
	"fmt"
	"time"
)

// StepDefinition describes one step of a workflow template.
type StepDefinition struct {
	// ID is the step identifier, unique within the template.
	ID string `json:"id" yaml:"id"`
	// AgentID identifies the agent bound to this step.
	AgentID string `json:"agent_id" yaml:"agent"`
	// TaskText is the instruction passed to the agent.
	TaskText string `json:"task_text" yaml:"task"`
	// DependsOn lists step ids that must complete before this step runs.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// WorkflowTemplate is a named, reusable step graph. Templates are immutable
// once created; executions copy their definitions at submission time.
type WorkflowTemplate struct {
	// ID is the template identifier.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable template name.
	Name string `json:"name" yaml:"name"`
	// Description explains what the workflow does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Steps are the step definitions in order.
	Steps []StepDefinition `json:"steps" yaml:"steps"`
	// CreatedAt is when the template was registered.
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Validate checks structural requirements that do not need graph analysis:
// non-empty ids and agents, unique step ids, and dependencies that reference
// steps in the same template. Cycle detection is the resolver's job.
func (t *WorkflowTemplate) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %q has no steps", t.Name)
	}

	ids := make(map[string]bool, len(t.Steps))
	for i, s := range t.Steps {
		if s.ID == "" {
			return fmt.Errorf("template %q: step %d has no id", t.Name, i)
		}
		if s.AgentID == "" {
			return fmt.Errorf("template %q: step %s has no agent", t.Name, s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("template %q: duplicate step id %s", t.Name, s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range t.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				return fmt.Errorf("template %q: step %s depends on itself", t.Name, s.ID)
			}
			if !ids[dep] {
				return fmt.Errorf("template %q: step %s depends on unknown step %s", t.Name, s.ID, dep)
			}
		}
	}

	return nil
}

// Instantiate copies the template's definitions into pending steps bound to
// the given execution id.
func (t *WorkflowTemplate) Instantiate(executionID string) []*Step {
	steps := make([]*Step, 0, len(t.Steps))
	for i, def := range t.Steps {
		deps := make([]string, len(def.DependsOn))
		copy(deps, def.DependsOn)
		steps = append(steps, &Step{
			ID:          def.ID,
			ExecutionID: executionID,
			AgentID:     def.AgentID,
			TaskText:    def.TaskText,
			DependsOn:   deps,
			Status:      StepPending,
			Order:       i,
		})
	}
	return steps
}
