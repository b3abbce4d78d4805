package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Engine.MaxInFlight != 4 {
		t.Errorf("max in flight = %d, want 4", cfg.Engine.MaxInFlight)
	}
	if cfg.Engine.StepTimeout != 60*time.Second {
		t.Errorf("step timeout = %v, want 60s", cfg.Engine.StepTimeout)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Engine.DefaultMode != "parallel" {
		t.Errorf("default mode = %q", cfg.Engine.DefaultMode)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  model: claude-opus-4
  max_tokens: 8192
engine:
  max_in_flight: 8
  step_timeout: 2m
retry:
  max_retries: 5
  initial_delay: 500ms
agents:
  - id: researcher
    system_prompt: you research topics
  - id: writer
    system_prompt: you write summaries
    model: claude-haiku-3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.Model != "claude-opus-4" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if cfg.Engine.MaxInFlight != 8 {
		t.Errorf("max in flight = %d, want 8", cfg.Engine.MaxInFlight)
	}
	if cfg.Engine.StepTimeout != 2*time.Minute {
		t.Errorf("step timeout = %v, want 2m", cfg.Engine.StepTimeout)
	}
	if cfg.Retry.InitialDelay != 500*time.Millisecond {
		t.Errorf("initial delay = %v", cfg.Retry.InitialDelay)
	}

	// Unset keys fall back to defaults.
	if cfg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("max delay = %v, want default 30s", cfg.Retry.MaxDelay)
	}

	ids := cfg.AgentIDs()
	if len(ids) != 2 || ids[0] != "researcher" || ids[1] != "writer" {
		t.Errorf("agent ids = %v", ids)
	}
	writer := cfg.Agent("writer")
	if writer == nil || writer.Model != "claude-haiku-3" {
		t.Errorf("writer agent = %+v", writer)
	}
	if cfg.Agent("ghost") != nil {
		t.Error("unknown agent resolved")
	}
}

func TestLoadFromPath_ExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("MAESTRO_TEST_KEY", "sk-ant-expanded-key-12345")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: ${MAESTRO_TEST_KEY}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-expanded-key-12345" {
		t.Errorf("api key = %q, env reference not expanded", cfg.Anthropic.APIKey)
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")
		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-from-config"}}

		key, err := ResolveAPIKey(cfg)
		if err != nil {
			t.Fatalf("ResolveAPIKey: %v", err)
		}
		if key != "sk-ant-from-env" {
			t.Errorf("key = %q", key)
		}
	})

	t.Run("config fallback", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-from-config"}}

		key, err := ResolveAPIKey(cfg)
		if err != nil {
			t.Fatalf("ResolveAPIKey: %v", err)
		}
		if key != "sk-ant-from-config" {
			t.Errorf("key = %q", key)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		if _, err := ResolveAPIKey(&Config{}); err != ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "sk-ant-REDACTED", false},
		{"empty", "", true},
		{"wrong prefix", "sk-openai-abcdefghijklmnop", true},
		{"too short", "sk-ant-x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("empty = %q", got)
	}
	if got := MaskAPIKey("sk-ant-REDACTED"); got != "sk-ant-...1234" {
		t.Errorf("masked = %q", got)
	}
	if got := MaskAPIKey("sk-ant-short"); got != "sk-ant-..." {
		t.Errorf("short = %q", got)
	}
}
