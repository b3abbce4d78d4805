package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Workflow orchestration for agent teams",
	Long: `Maestro runs declarative workflows of agent-bound steps.

A workflow names its steps, the agent each step is bound to, and the
dependencies between them. Maestro schedules the steps dependency-correct
in sequential, parallel, or staged mode, isolates failures to the branch
that failed, and records an audit trail of everything that happened.

Core capabilities:
- Runs named templates or ad-hoc workflow files
- Bounds parallelism and retries flaky steps with backoff
- Skips only the downstream of a failed step; unrelated branches finish
- Streams progress events to a live watch dashboard
- Keeps an exportable audit trail per execution`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
