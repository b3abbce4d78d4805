package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/maestroflow/maestro/pkg/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)

	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	runStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// statusStyle maps a step status to its display style.
func statusStyle(status models.StepStatus) lipgloss.Style {
	switch status {
	case models.StepCompleted:
		return okStyle
	case models.StepFailed:
		return failStyle
	case models.StepSkipped:
		return skipStyle
	case models.StepRunning:
		return runStyle
	default:
		return pendingStyle
	}
}
