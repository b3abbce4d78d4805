package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maestroflow/maestro/internal/config"
	"github.com/maestroflow/maestro/internal/engine"
	"github.com/maestroflow/maestro/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <execution-id>",
	Short: "Attach a live dashboard to an execution",
	Long: `Open the watch dashboard for an execution started elsewhere.

The dashboard polls the execution store at the configured refresh rate, so it
works even when the execution runs in another maestro process. Use
'maestro run --watch' instead to get event-driven updates for an execution
started in the same command.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchCmd,
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	exec, err := db.GetExecution(args[0])
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}

	interval := cfg.TUI.RefreshRate
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return tui.RunPolling(engine.NewExecutionView(exec), interval, func() (engine.ExecutionView, error) {
		e, err := db.GetExecution(args[0])
		if err != nil {
			return engine.ExecutionView{}, err
		}
		return engine.NewExecutionView(e), nil
	})
}
