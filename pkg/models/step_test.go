package models

import "testing"

func TestStepStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status StepStatus
		want   bool
	}{
		{"pending is valid", StepPending, true},
		{"blocked is valid", StepBlocked, true},
		{"running is valid", StepRunning, true},
		{"completed is valid", StepCompleted, true},
		{"failed is valid", StepFailed, true},
		{"skipped is valid", StepSkipped, true},
		{"empty string is invalid", StepStatus(""), false},
		{"unknown status is invalid", StepStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("StepStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestStepStatus_Terminal(t *testing.T) {
	tests := []struct {
		status StepStatus
		want   bool
	}{
		{StepPending, false},
		{StepBlocked, false},
		{StepRunning, false},
		{StepCompleted, true},
		{StepFailed, true},
		{StepSkipped, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("StepStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestStepStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from StepStatus
		to   StepStatus
		want bool
	}{
		{"pending to running", StepPending, StepRunning, true},
		{"pending to skipped", StepPending, StepSkipped, true},
		{"blocked to running", StepBlocked, StepRunning, true},
		{"running to completed", StepRunning, StepCompleted, true},
		{"running to failed", StepRunning, StepFailed, true},
		{"running to skipped", StepRunning, StepSkipped, true},
		{"completed to running is illegal", StepCompleted, StepRunning, false},
		{"failed to running is illegal", StepFailed, StepRunning, false},
		{"skipped to pending is illegal", StepSkipped, StepPending, false},
		{"pending to completed skips running", StepPending, StepCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%q.CanTransition(%q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestExecutionStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ExecutionStatus
		to   ExecutionStatus
		want bool
	}{
		{"pending to running", ExecutionPending, ExecutionRunning, true},
		{"pending to cancelled", ExecutionPending, ExecutionCancelled, true},
		{"running to completed", ExecutionRunning, ExecutionCompleted, true},
		{"running to failed", ExecutionRunning, ExecutionFailed, true},
		{"running to cancelled", ExecutionRunning, ExecutionCancelled, true},
		{"completed to running is illegal", ExecutionCompleted, ExecutionRunning, false},
		{"cancelled to running is illegal", ExecutionCancelled, ExecutionRunning, false},
		{"pending to completed is illegal", ExecutionPending, ExecutionCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%q.CanTransition(%q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestExecution_StepByID(t *testing.T) {
	exec := &Execution{
		ID: "exec-1",
		Steps: []*Step{
			{ID: "a"},
			{ID: "b"},
		},
	}

	if got := exec.StepByID("b"); got == nil || got.ID != "b" {
		t.Errorf("StepByID(b) = %v, want step b", got)
	}
	if got := exec.StepByID("missing"); got != nil {
		t.Errorf("StepByID(missing) = %v, want nil", got)
	}
}
