package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maestroflow/maestro/internal/engine"
	"github.com/maestroflow/maestro/internal/store"
	"github.com/maestroflow/maestro/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [execution-id]",
	Short: "Show execution state",
	Long: `Display recent executions, or the full state of one execution.

Without arguments, lists the most recent executions. With an execution id,
shows every step with its status, agent, and error if it failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of recent executions to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showExecution(db, args[0])
	}
	return listExecutions(db)
}

func listExecutions(db *store.DB) error {
	execs, err := db.ListExecutions(statusLimit)
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}
	if len(execs) == 0 {
		fmt.Println("No executions yet. Run 'maestro run <template>' to start one.")
		return nil
	}

	fmt.Printf("%-38s %-11s %-11s %s\n", "EXECUTION", "MODE", "STATUS", "STARTED")
	for _, e := range execs {
		fmt.Printf("%-38s %-11s %-11s %s\n",
			e.ID, e.Mode, colorStatus(string(e.Status)), formatAge(e.CreatedAt))
	}
	return nil
}

func showExecution(db *store.DB, id string) error {
	exec, err := db.GetExecution(id)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}

	p := engine.Progress(exec.Steps)
	fmt.Printf("Execution: %s\n", exec.ID)
	if exec.TemplateID != "" {
		fmt.Printf("  Template: %s\n", exec.TemplateID)
	}
	fmt.Printf("  Mode: %s\n", exec.Mode)
	fmt.Printf("  Status: %s\n", colorStatus(string(exec.Status)))
	fmt.Printf("  Started: %s ago\n", formatAge(exec.CreatedAt))
	fmt.Printf("  Progress: %d%% (%d/%d steps done, %d failed)\n", p.Percent, p.Completed+p.Skipped, p.Total, p.Failed)
	fmt.Println()

	fmt.Printf("  %-20s %-14s %-10s %s\n", "STEP", "AGENT", "STATUS", "DETAIL")
	for _, s := range exec.Steps {
		detail := ""
		switch {
		case s.Error != "":
			detail = s.Error
		case s.RetryCount > 0:
			detail = fmt.Sprintf("%d retries", s.RetryCount)
		}
		fmt.Printf("  %-20s %-14s %-10s %s\n", s.ID, s.AgentID, colorStatus(string(s.Status)), detail)
	}
	return nil
}

// colorStatus renders a status word in its conventional color. Execution and
// step statuses share the same words for the common states, so one case per
// word covers both.
func colorStatus(status string) string {
	switch status {
	case string(models.StepCompleted):
		return color.GreenString(status)
	case string(models.StepFailed):
		return color.RedString(status)
	case string(models.ExecutionCancelled), string(models.StepSkipped):
		return color.YellowString(status)
	case string(models.StepRunning):
		return color.CyanString(status)
	default:
		return status
	}
}

// formatAge renders a duration since t in coarse units.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
