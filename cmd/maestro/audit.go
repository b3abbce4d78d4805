package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maestroflow/maestro/internal/audit"
)

var (
	auditExport string
	auditOut    string
	auditComms  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit <execution-id>",
	Short: "Show or export an execution's audit trail",
	Long: `Display the append-only audit trail of an execution.

Every status transition, retry attempt, and discarded result is recorded in
order. With --comms, agent-to-agent communication records are shown instead.

Export formats:
  csv  written to --out or stdout

Examples:
  maestro audit 4f6b2c10-...            # Human-readable trail
  maestro audit 4f6b2c10-... --comms    # Communication records
  maestro audit 4f6b2c10-... --export csv --out trail.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runAuditCmd,
}

func init() {
	auditCmd.Flags().StringVar(&auditExport, "export", "", "Export format (csv)")
	auditCmd.Flags().StringVar(&auditOut, "out", "", "Write the export to a file instead of stdout")
	auditCmd.Flags().BoolVar(&auditComms, "comms", false, "Show communication records instead of the audit trail")
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	executionID := args[0]

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	recorder := audit.NewRecorder(db, db)

	if auditExport != "" {
		data, err := recorder.Export(executionID, auditExport)
		if err != nil {
			if errors.Is(err, audit.ErrUnsupportedFormat) {
				return fmt.Errorf("format %q is not supported, use csv", auditExport)
			}
			return err
		}
		if auditOut != "" {
			if err := os.WriteFile(auditOut, data, 0644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Printf("Exported audit trail to %s\n", auditOut)
			return nil
		}
		os.Stdout.Write(data)
		return nil
	}

	if auditComms {
		return showCommunications(recorder, executionID)
	}
	return showAuditTrail(recorder, executionID)
}

func showAuditTrail(recorder *audit.Recorder, executionID string) error {
	records, err := recorder.Query(executionID)
	if err != nil {
		return fmt.Errorf("query audit trail: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No audit records for this execution.")
		return nil
	}

	for _, r := range records {
		ts := r.Timestamp.Format("15:04:05.000")
		subject := r.StepID
		if subject == "" {
			subject = "execution"
		}
		line := fmt.Sprintf("%4d  %s  %-20s %-18s %s", r.Seq, ts, subject, r.Action, r.Status)
		if r.Message != "" {
			line += "  " + color.New(color.Faint).Sprint(r.Message)
		}
		fmt.Println(line)
	}
	return nil
}

func showCommunications(recorder *audit.Recorder, executionID string) error {
	comms, err := recorder.Communications(executionID)
	if err != nil {
		return fmt.Errorf("list communications: %w", err)
	}
	if len(comms) == 0 {
		fmt.Println("No communication records for this execution.")
		return nil
	}

	for _, c := range comms {
		fmt.Printf("%s %s %s\n", color.CyanString(c.FromAgent), "→", color.CyanString(c.ToAgent))
		fmt.Printf("  message:  %s\n", c.Message)
		if c.Answered() {
			fmt.Printf("  response: %s\n", c.Response)
		} else {
			fmt.Printf("  response: %s\n", color.YellowString("(unanswered)"))
		}
	}
	return nil
}
