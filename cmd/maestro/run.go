package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maestroflow/maestro/internal/config"
	"github.com/maestroflow/maestro/internal/control"
	"github.com/maestroflow/maestro/internal/engine"
	"github.com/maestroflow/maestro/internal/template"
	"github.com/maestroflow/maestro/internal/tui"
	"github.com/maestroflow/maestro/pkg/models"
)

var (
	runFile        string
	runMode        string
	runContext     []string
	runWatch       bool
	runMaxInFlight int
)

var runCmd = &cobra.Command{
	Use:   "run [template]",
	Short: "Run a workflow",
	Long: `Run a named workflow template or an ad-hoc workflow file.

The template argument resolves against the template registry by id or name.
With --file, the workflow is read from a YAML file instead and does not need
to be registered first.

Execution modes:
  sequential  one step at a time, in definition order
  parallel    dependency-correct with bounded concurrency
  staged      dependency levels run as hard barriers

Examples:
  maestro run research-and-write
  maestro run --file workflow.yaml --mode staged
  maestro run nightly-report --context date=2026-08-26 --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Run a workflow YAML file instead of a registered template")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Execution mode: sequential, parallel, or staged")
	runCmd.Flags().StringSliceVar(&runContext, "context", nil, "Workflow context as key=value (repeatable)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Show the live dashboard while the workflow runs")
	runCmd.Flags().IntVar(&runMaxInFlight, "max-in-flight", 0, "Override the parallel concurrency bound")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tmpl, err := resolveTemplate(args)
	if err != nil {
		return err
	}

	mode := models.ExecutionMode(runMode)
	if runMode == "" {
		mode = models.ExecutionMode(cfg.Engine.DefaultMode)
	}

	wctx, err := parseContextPairs(runContext)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	// Executions left running by a crashed orchestrator are failed first
	// so their ids cannot collide with live state.
	if n, err := db.RecoverStale(); err == nil && n > 0 {
		fmt.Printf("Recovered %d stale execution(s) from a previous run.\n", n)
	}

	invoker, err := buildInvoker(cfg)
	if err != nil {
		return err
	}

	emitter := engine.NewEventEmitter(cfg.Engine.EventBuffer)
	eng := buildEngine(cfg, db, invoker, emitter, runMaxInFlight)
	defer eng.Stop()

	execID, err := eng.Submit(tmpl.ID, tmpl.Instantiate(""), mode, wctx)
	if err != nil {
		return err
	}
	if err := eng.Start(context.Background(), execID); err != nil {
		return err
	}

	fmt.Printf("Execution %s started: %s (%s mode, %d steps)\n", execID, tmpl.Name, mode, len(tmpl.Steps))

	// Ctrl-C and cancel signal files both request cooperative cancellation.
	watcher, err := control.NewWatcher(controlDir(), func(id string) {
		if err := eng.Cancel(id); err != nil {
			fmt.Fprintf(os.Stderr, "cancel %s: %v\n", id, err)
		}
	})
	if err == nil {
		defer watcher.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "\ninterrupt received, cancelling (in-flight steps finish, results discarded)")
			eng.Cancel(execID)
		}
	}()

	if runWatch {
		view, err := eng.Status(execID)
		if err != nil {
			return err
		}
		if err := tui.Run(view, emitter.Events(), eng.Wait(execID)); err != nil {
			return err
		}
	} else {
		streamEvents(emitter.Events(), eng.Wait(execID))
	}

	return printOutcome(eng, execID)
}

// resolveTemplate loads the workflow from --file or the registry.
func resolveTemplate(args []string) (*models.WorkflowTemplate, error) {
	if runFile != "" {
		return template.ParseFile(runFile)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("name a template or pass --file")
	}

	reg, err := template.NewStore(config.TemplatesDir())
	if err != nil {
		return nil, err
	}
	return reg.Resolve(args[0])
}

// streamEvents prints engine events as log lines until the execution ends.
func streamEvents(events <-chan engine.Event, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			printEvent(ev)
		case <-done:
			// Drain what is already buffered.
			for {
				select {
				case ev := <-events:
					printEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func printEvent(ev engine.Event) {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case engine.EventStepStarted:
		fmt.Printf("%s %s %s (%s)\n", ts, color.CyanString("▶"), ev.StepID, ev.AgentID)
	case engine.EventStepRetrying:
		fmt.Printf("%s %s %s: %s\n", ts, color.YellowString("↻"), ev.StepID, ev.Message)
	case engine.EventStepCompleted:
		fmt.Printf("%s %s %s [%d%%]\n", ts, color.GreenString("✓"), ev.StepID, ev.Progress)
	case engine.EventStepFailed:
		msg := ""
		if ev.Error != nil {
			msg = ev.Error.Error()
		}
		fmt.Printf("%s %s %s: %s\n", ts, color.RedString("✗"), ev.StepID, msg)
	case engine.EventStepSkipped:
		fmt.Printf("%s %s %s: %s\n", ts, color.YellowString("⊘"), ev.StepID, ev.Message)
	case engine.EventExecutionCompleted, engine.EventExecutionFailed, engine.EventExecutionCancelled:
		fmt.Printf("%s execution %s\n", ts, ev.Status)
	}
}

// printOutcome reports the terminal state and returns an error for failed
// executions so the process exits non-zero.
func printOutcome(eng *engine.Engine, execID string) error {
	view, err := eng.Status(execID)
	if err != nil {
		return err
	}

	p := view.Progress
	summary := fmt.Sprintf("%d completed, %d failed, %d skipped of %d steps",
		p.Completed, p.Failed, p.Skipped, p.Total)

	switch view.Status {
	case models.ExecutionCompleted:
		color.Green("Execution %s completed: %s", execID, summary)
		return nil
	case models.ExecutionCancelled:
		color.Yellow("Execution %s cancelled: %s", execID, summary)
		return nil
	default:
		color.Red("Execution %s %s: %s", execID, view.Status, summary)
		return fmt.Errorf("execution %s", view.Status)
	}
}
