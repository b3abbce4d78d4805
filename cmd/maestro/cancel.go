package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maestroflow/maestro/internal/control"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "Request cancellation of a running execution",
	Long: `Request cooperative cancellation of a running execution.

The request is delivered through the project's .maestro/signals directory,
so it works from a separate process. The orchestrator dispatches no new
steps after the request; steps already in flight are allowed to finish and
their results are discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		executionID := args[0]
		if err := control.RequestCancel(controlDir(), executionID); err != nil {
			return fmt.Errorf("request cancel: %w", err)
		}
		fmt.Printf("Cancellation requested for %s.\n", executionID)
		fmt.Println("In-flight steps will finish; their results are discarded.")
		return nil
	},
}
