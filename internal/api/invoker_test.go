package api

import (
	"strings"
	"testing"

	"github.com/maestroflow/maestro/internal/dispatch"
)

func TestRenderPrompt(t *testing.T) {
	t.Run("task only", func(t *testing.T) {
		got := renderPrompt(dispatch.Invocation{TaskText: "summarize the findings"})
		if got != "summarize the findings" {
			t.Errorf("prompt = %q", got)
		}
	})

	t.Run("context in sorted key order", func(t *testing.T) {
		got := renderPrompt(dispatch.Invocation{
			TaskText: "write the report",
			Context: map[string]string{
				"steps.research.output": "three sources found",
				"goal":                  "quarterly summary",
			},
		})

		if !strings.HasPrefix(got, "write the report") {
			t.Errorf("task text not first: %q", got)
		}
		goalIdx := strings.Index(got, "### goal")
		stepIdx := strings.Index(got, "### steps.research.output")
		if goalIdx == -1 || stepIdx == -1 {
			t.Fatalf("context sections missing: %q", got)
		}
		if goalIdx > stepIdx {
			t.Error("context keys not sorted")
		}
		if !strings.Contains(got, "three sources found") {
			t.Error("context value missing")
		}
	})
}

func TestTokenTracker(t *testing.T) {
	tracker := NewTokenTracker()
	tracker.Add(100, 50)
	tracker.Add(200, 75)

	in, out := tracker.Total()
	if in != 300 || out != 125 {
		t.Errorf("totals = %d/%d, want 300/125", in, out)
	}
	if tracker.Calls() != 2 {
		t.Errorf("calls = %d, want 2", tracker.Calls())
	}

	tracker.Reset()
	in, out = tracker.Total()
	if in != 0 || out != 0 || tracker.Calls() != 0 {
		t.Error("reset did not clear totals")
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock("claude-sonnet-4-20250514")
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("translated = %q", got)
	}

	// Unknown or already-translated models pass through.
	custom := translateModelForBedrock("us.anthropic.custom-model-v1:0")
	if custom != "us.anthropic.custom-model-v1:0" {
		t.Errorf("custom = %q", custom)
	}
}

func TestNewClient_RequiresKeyWithoutBedrock(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error with no API key and no Bedrock")
	}
}
