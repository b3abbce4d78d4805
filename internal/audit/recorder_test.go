package audit

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maestroflow/maestro/internal/store"
)

func setupRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRecorder(db, db)
}

func TestRecord_AppendsInOrder(t *testing.T) {
	r := setupRecorder(t)

	r.Record(Event{ExecutionID: "exec-1", StepID: "a", AgentID: "researcher", Action: "step_started", Status: "running"})
	r.Record(Event{ExecutionID: "exec-1", StepID: "a", AgentID: "researcher", Action: "step_completed", Status: "completed"})
	r.Record(Event{ExecutionID: "exec-1", Action: "execution_completed", Status: "completed"})

	records, err := r.Query("exec-1")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	actions := []string{records[0].Action, records[1].Action, records[2].Action}
	want := []string{"step_started", "step_completed", "execution_completed"}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("record %d action = %q, want %q", i, actions[i], want[i])
		}
	}

	// Execution-level record has no step id.
	if records[2].StepID != "" {
		t.Errorf("execution-level record has step id %q", records[2].StepID)
	}
}

func TestRecordCommunication_AndAttach(t *testing.T) {
	r := setupRecorder(t)

	r.RecordCommunication("exec-1", "draft:reviewer", "writer", "reviewer", "please check section 2")
	// Replay from a dispatch retry.
	r.RecordCommunication("exec-1", "draft:reviewer", "writer", "reviewer", "please check section 2")

	if err := r.AttachResponse("draft:reviewer", "looks good"); err != nil {
		t.Fatalf("AttachResponse: %v", err)
	}
	if err := r.AttachResponse("draft:reviewer", "second delivery"); err != nil {
		t.Fatalf("AttachResponse duplicate: %v", err)
	}

	comms, err := r.Communications("exec-1")
	if err != nil {
		t.Fatalf("Communications: %v", err)
	}
	if len(comms) != 1 {
		t.Fatalf("got %d records, want 1", len(comms))
	}
	if comms[0].Response != "looks good" {
		t.Errorf("response = %q, want first attachment", comms[0].Response)
	}
}

func TestExport_CSV(t *testing.T) {
	r := setupRecorder(t)

	r.Record(Event{ExecutionID: "exec-1", StepID: "a", AgentID: "researcher", Action: "step_started", Status: "running", Message: "dispatched"})

	data, err := r.Export("exec-1", FormatCSV)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d csv lines, want header + 1 row", len(lines))
	}
	if lines[0] != "timestamp,agent,action,status,message" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "researcher,step_started,running,dispatched") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestExport_PDFUnsupported(t *testing.T) {
	r := setupRecorder(t)

	_, err := r.Export("exec-1", FormatPDF)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	_, err = r.Export("exec-1", "xml")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unknown format: expected ErrUnsupportedFormat, got %v", err)
	}
}
