// Package tui provides the live watch dashboard for a running execution.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/maestroflow/maestro/internal/engine"
	"github.com/maestroflow/maestro/pkg/models"
)

// EngineEventMsg wraps an engine event for the watch model.
type EngineEventMsg struct {
	Event engine.Event
}

// ExecutionDoneMsg signals that the watched execution reached a terminal
// state and the event stream is drained.
type ExecutionDoneMsg struct{}

// SnapshotMsg replaces the dashboard state with a fresh execution snapshot.
// Used when the watcher attaches to an execution owned by another process
// and must poll the store instead of receiving live events.
type SnapshotMsg struct {
	View engine.ExecutionView
}

// stepRow is the dashboard's view of one step.
type stepRow struct {
	ID      string
	AgentID string
	Status  models.StepStatus
	Message string
}

// logLine is one entry in the event log tail.
type logLine struct {
	At   time.Time
	Text string
}

// Watch is the bubbletea model for `maestro watch`.
type Watch struct {
	executionID string
	mode        models.ExecutionMode
	status      models.ExecutionStatus

	steps    []stepRow
	stepIdx  map[string]int
	logs     []logLine
	percent  int
	done     bool
	quitting bool

	width   int
	spin    spinner.Model
	bar     progress.Model
}

// NewWatch creates a watch model seeded from an execution snapshot, so steps
// that finished before the watcher attached still show their state.
func NewWatch(view engine.ExecutionView) *Watch {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	w := &Watch{
		executionID: view.ID,
		mode:        view.Mode,
		status:      view.Status,
		stepIdx:     make(map[string]int),
		percent:     view.Progress.Percent,
		spin:        s,
		bar:         progress.New(progress.WithDefaultGradient()),
		width:       80,
	}
	for _, sv := range view.Steps {
		w.stepIdx[sv.ID] = len(w.steps)
		w.steps = append(w.steps, stepRow{
			ID:      sv.ID,
			AgentID: sv.AgentID,
			Status:  sv.Status,
			Message: sv.Error,
		})
	}
	return w
}

// Init implements tea.Model.
func (w *Watch) Init() tea.Cmd {
	return w.spin.Tick
}

// Update implements tea.Model.
func (w *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			w.quitting = true
			return w, tea.Quit
		}

	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.bar.Width = msg.Width - 10

	case EngineEventMsg:
		w.applyEvent(msg.Event)

	case SnapshotMsg:
		w.applySnapshot(msg.View)

	case ExecutionDoneMsg:
		w.done = true
		return w, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spin, cmd = w.spin.Update(msg)
		return w, cmd
	}

	return w, nil
}

// applyEvent folds one engine event into the dashboard state.
func (w *Watch) applyEvent(ev engine.Event) {
	if ev.Progress > w.percent {
		w.percent = ev.Progress
	}

	switch ev.Type {
	case engine.EventStepStarted:
		w.setStep(ev, models.StepRunning, "")
		w.log(ev.Timestamp, fmt.Sprintf("%s started (%s)", ev.StepID, ev.AgentID))
	case engine.EventStepRetrying:
		w.log(ev.Timestamp, fmt.Sprintf("%s retrying: %s", ev.StepID, ev.Message))
	case engine.EventStepCompleted:
		w.setStep(ev, models.StepCompleted, "")
		w.log(ev.Timestamp, fmt.Sprintf("%s completed", ev.StepID))
	case engine.EventStepFailed:
		msg := ""
		if ev.Error != nil {
			msg = ev.Error.Error()
		}
		w.setStep(ev, models.StepFailed, msg)
		w.log(ev.Timestamp, fmt.Sprintf("%s failed: %s", ev.StepID, msg))
	case engine.EventStepSkipped:
		w.setStep(ev, models.StepSkipped, ev.Message)
		w.log(ev.Timestamp, fmt.Sprintf("%s skipped: %s", ev.StepID, ev.Message))
	case engine.EventExecutionCompleted, engine.EventExecutionFailed, engine.EventExecutionCancelled:
		w.status = models.ExecutionStatus(ev.Status)
		w.log(ev.Timestamp, fmt.Sprintf("execution %s", ev.Status))
	}
}

// applySnapshot folds a full execution snapshot into the dashboard state.
// Progress only moves forward so a stale poll cannot walk the bar back.
func (w *Watch) applySnapshot(view engine.ExecutionView) {
	w.status = view.Status
	w.mode = view.Mode
	if view.Progress.Percent > w.percent {
		w.percent = view.Progress.Percent
	}

	for _, sv := range view.Steps {
		idx, ok := w.stepIdx[sv.ID]
		if !ok {
			w.stepIdx[sv.ID] = len(w.steps)
			w.steps = append(w.steps, stepRow{ID: sv.ID})
			idx = len(w.steps) - 1
		}
		w.steps[idx].AgentID = sv.AgentID
		w.steps[idx].Status = sv.Status
		w.steps[idx].Message = sv.Error
	}
}

// setStep updates (or inserts) the row for the event's step.
func (w *Watch) setStep(ev engine.Event, status models.StepStatus, message string) {
	idx, ok := w.stepIdx[ev.StepID]
	if !ok {
		w.stepIdx[ev.StepID] = len(w.steps)
		w.steps = append(w.steps, stepRow{ID: ev.StepID, AgentID: ev.AgentID})
		idx = len(w.steps) - 1
	}
	w.steps[idx].Status = status
	w.steps[idx].Message = message
	if ev.AgentID != "" {
		w.steps[idx].AgentID = ev.AgentID
	}
}

func (w *Watch) log(at time.Time, text string) {
	if at.IsZero() {
		at = time.Now()
	}
	w.logs = append(w.logs, logLine{At: at, Text: text})
}

// View implements tea.Model.
func (w *Watch) View() string {
	if w.quitting {
		return ""
	}

	var b strings.Builder

	title := titleStyle.Render(fmt.Sprintf("maestro watch  %s", shortID(w.executionID)))
	meta := metaStyle.Render(fmt.Sprintf("mode=%s status=%s", w.mode, w.status))
	b.WriteString(title + "  " + meta + "\n\n")

	b.WriteString(w.bar.ViewAs(float64(w.percent)/100.0) + fmt.Sprintf(" %3d%%\n\n", w.percent))

	for _, row := range w.steps {
		b.WriteString("  " + w.renderStep(row) + "\n")
	}

	if len(w.logs) > 0 {
		b.WriteString("\n" + sectionStyle.Render("events") + "\n")
		start := 0
		if len(w.logs) > 8 {
			start = len(w.logs) - 8
		}
		for _, l := range w.logs[start:] {
			b.WriteString(fmt.Sprintf("  %s %s\n", l.At.Format("15:04:05"), logStyle.Render(l.Text)))
		}
	}

	b.WriteString("\n" + footerStyle.Render("q to quit"))
	return b.String()
}

// renderStep formats one step line with a status glyph.
func (w *Watch) renderStep(row stepRow) string {
	var glyph string
	switch row.Status {
	case models.StepRunning:
		glyph = w.spin.View()
	case models.StepCompleted:
		glyph = okStyle.Render("✓")
	case models.StepFailed:
		glyph = failStyle.Render("✗")
	case models.StepSkipped:
		glyph = skipStyle.Render("⊘")
	default:
		glyph = pendingStyle.Render("·")
	}

	line := fmt.Sprintf("%s %-20s %-14s %s", glyph, row.ID, row.AgentID, statusStyle(row.Status).Render(string(row.Status)))
	if row.Message != "" {
		line += "  " + metaStyle.Render(row.Message)
	}
	return line
}

// shortID truncates a uuid for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run displays the dashboard, pumping engine events into the program until
// the done channel closes.
func Run(initial engine.ExecutionView, events <-chan engine.Event, done <-chan struct{}) error {
	model := NewWatch(initial)
	p := tea.NewProgram(model)

	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					p.Send(ExecutionDoneMsg{})
					return
				}
				p.Send(EngineEventMsg{Event: ev})
			case <-done:
				// Drain anything already buffered, then stop.
				for {
					select {
					case ev := <-events:
						p.Send(EngineEventMsg{Event: ev})
					default:
						p.Send(ExecutionDoneMsg{})
						return
					}
				}
			}
		}
	}()

	_, err := p.Run()
	return err
}

// RunPolling displays the dashboard for an execution owned by another
// process, refreshing from the store at the given interval. It returns once
// the execution reaches a terminal status or the user quits.
func RunPolling(initial engine.ExecutionView, interval time.Duration, fetch func() (engine.ExecutionView, error)) error {
	model := NewWatch(initial)
	p := tea.NewProgram(model)

	quit := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				view, err := fetch()
				if err != nil {
					continue
				}
				p.Send(SnapshotMsg{View: view})
				if view.Status.Terminal() {
					p.Send(ExecutionDoneMsg{})
					return
				}
			}
		}
	}()

	_, err := p.Run()
	close(quit)
	return err
}
