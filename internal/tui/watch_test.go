package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maestroflow/maestro/internal/engine"
	"github.com/maestroflow/maestro/pkg/models"
)

func seedView() engine.ExecutionView {
	return engine.ExecutionView{
		ID:     "11111111-2222-3333-4444-555555555555",
		Mode:   models.ModeStaged,
		Status: models.ExecutionRunning,
		Steps: []engine.StepView{
			{ID: "research", AgentID: "researcher", Status: models.StepRunning},
			{ID: "draft", AgentID: "writer", Status: models.StepPending},
		},
	}
}

func TestWatch_SeedsFromSnapshot(t *testing.T) {
	w := NewWatch(seedView())

	view := w.View()
	if !strings.Contains(view, "research") || !strings.Contains(view, "draft") {
		t.Errorf("snapshot steps missing from view:\n%s", view)
	}
	if !strings.Contains(view, "11111111") {
		t.Errorf("execution id missing from view:\n%s", view)
	}
	if !strings.Contains(view, "mode=staged") {
		t.Errorf("mode missing from view:\n%s", view)
	}
}

func TestWatch_AppliesStepEvents(t *testing.T) {
	w := NewWatch(seedView())

	w.applyEvent(engine.Event{
		Type:     engine.EventStepCompleted,
		StepID:   "research",
		AgentID:  "researcher",
		Progress: 50,
	})
	w.applyEvent(engine.Event{
		Type:     engine.EventStepFailed,
		StepID:   "draft",
		AgentID:  "writer",
		Error:    errors.New("agent exploded"),
		Progress: 100,
	})

	if w.steps[0].Status != models.StepCompleted {
		t.Errorf("research = %q", w.steps[0].Status)
	}
	if w.steps[1].Status != models.StepFailed || w.steps[1].Message != "agent exploded" {
		t.Errorf("draft = %q message %q", w.steps[1].Status, w.steps[1].Message)
	}
	if w.percent != 100 {
		t.Errorf("percent = %d, want 100", w.percent)
	}

	view := w.View()
	if !strings.Contains(view, "agent exploded") {
		t.Errorf("failure message missing from view:\n%s", view)
	}
}

func TestWatch_ProgressNeverRegresses(t *testing.T) {
	w := NewWatch(seedView())

	w.applyEvent(engine.Event{Type: engine.EventStepCompleted, StepID: "research", Progress: 50})
	w.applyEvent(engine.Event{Type: engine.EventStepStarted, StepID: "draft", Progress: 0})

	if w.percent != 50 {
		t.Errorf("percent = %d, want 50 after stale event", w.percent)
	}
}

func TestWatch_TerminalEventUpdatesStatus(t *testing.T) {
	w := NewWatch(seedView())

	w.applyEvent(engine.Event{
		Type:   engine.EventExecutionCancelled,
		Status: string(models.ExecutionCancelled),
	})
	if w.status != models.ExecutionCancelled {
		t.Errorf("status = %q", w.status)
	}
}

func TestWatch_QuitKeys(t *testing.T) {
	w := NewWatch(seedView())

	model, cmd := w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q did not produce a command")
	}
	if !model.(*Watch).quitting {
		t.Error("q did not set quitting")
	}
}

func TestWatch_DoneMsgQuits(t *testing.T) {
	w := NewWatch(seedView())

	model, cmd := w.Update(ExecutionDoneMsg{})
	if cmd == nil {
		t.Fatal("done message did not produce a command")
	}
	if !model.(*Watch).done {
		t.Error("done flag not set")
	}
}

func TestWatch_SnapshotRefreshesRows(t *testing.T) {
	w := NewWatch(seedView())

	next := seedView()
	next.Status = models.ExecutionCompleted
	next.Progress = engine.ProgressView{Percent: 100, Total: 2, Completed: 2}
	next.Steps[0].Status = models.StepCompleted
	next.Steps[1].Status = models.StepCompleted
	w.applySnapshot(next)

	if w.status != models.ExecutionCompleted {
		t.Errorf("status = %q", w.status)
	}
	if w.percent != 100 {
		t.Errorf("percent = %d, want 100", w.percent)
	}
	if w.steps[0].Status != models.StepCompleted || w.steps[1].Status != models.StepCompleted {
		t.Errorf("steps = %+v", w.steps)
	}

	// A stale snapshot must not walk progress back.
	stale := seedView()
	stale.Progress = engine.ProgressView{Percent: 50, Total: 2, Completed: 1}
	w.applySnapshot(stale)
	if w.percent != 100 {
		t.Errorf("percent = %d after stale snapshot, want 100", w.percent)
	}
}

func TestWatch_UnknownStepInEventIsAdded(t *testing.T) {
	w := NewWatch(engine.ExecutionView{ID: "x", Mode: models.ModeSequential})

	w.applyEvent(engine.Event{Type: engine.EventStepStarted, StepID: "late", AgentID: "agent-l"})
	if len(w.steps) != 1 || w.steps[0].Status != models.StepRunning {
		t.Errorf("steps = %+v", w.steps)
	}
}
