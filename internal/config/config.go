// Package config handles configuration loading and management for Maestro.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Maestro.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Retry     RetryConfig     `mapstructure:"retry"`
	TUI       TUIConfig       `mapstructure:"tui"`
	Agents    []AgentConfig   `mapstructure:"agents"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	// UseBedrock routes requests through AWS Bedrock instead of the
	// Anthropic API. Credentials come from the standard AWS chain.
	UseBedrock    bool   `mapstructure:"use_bedrock"`
	BedrockRegion string `mapstructure:"bedrock_region"`
}

// EngineConfig holds execution engine settings.
type EngineConfig struct {
	// MaxInFlight bounds concurrent steps in parallel mode.
	MaxInFlight int `mapstructure:"max_in_flight"`
	// StepTimeout is the per-attempt invocation timeout.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	// DefaultMode is used when a run does not name a mode.
	DefaultMode string `mapstructure:"default_mode"`
	// EventBuffer is the event channel capacity before events are dropped.
	EventBuffer int `mapstructure:"event_buffer"`
}

// RetryConfig holds per-step retry settings.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Jitter       bool          `mapstructure:"jitter"`
}

// TUIConfig holds watch display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// AgentConfig declares one agent in the roster. Steps bind to agents by id;
// an execution whose steps name agents outside the roster is rejected at
// validation time.
type AgentConfig struct {
	// ID is the roster identifier steps bind to.
	ID string `mapstructure:"id"`
	// SystemPrompt frames every task sent to this agent.
	SystemPrompt string `mapstructure:"system_prompt"`
	// Model overrides the global model for this agent, if set.
	Model string `mapstructure:"model"`
}

// AgentIDs returns the roster ids in declaration order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// Agent returns the roster entry for the given id, or nil.
func (c *Config) Agent(id string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i]
		}
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.maestro.yaml in current directory or parent)
// 3. User config (~/.config/maestro/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over user config.
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.bedrock_region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references.
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.bedrock_region", cfg.Anthropic.BedrockRegion)
	v.Set("engine.max_in_flight", cfg.Engine.MaxInFlight)
	v.Set("engine.step_timeout", cfg.Engine.StepTimeout.String())
	v.Set("engine.default_mode", cfg.Engine.DefaultMode)
	v.Set("engine.event_buffer", cfg.Engine.EventBuffer)
	v.Set("retry.max_retries", cfg.Retry.MaxRetries)
	v.Set("retry.initial_delay", cfg.Retry.InitialDelay.String())
	v.Set("retry.max_delay", cfg.Retry.MaxDelay.String())
	v.Set("retry.jitter", cfg.Retry.Jitter)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	agents := make([]map[string]interface{}, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, map[string]interface{}{
			"id":            a.ID,
			"system_prompt": a.SystemPrompt,
			"model":         a.Model,
		})
	}
	v.Set("agents", agents)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// TemplatesDir returns the directory where named workflow templates live.
func TemplatesDir() string {
	return filepath.Join(getUserConfigDir(), "templates")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.bedrock_region", "")

	v.SetDefault("engine.max_in_flight", 4)
	v.SetDefault("engine.step_timeout", "60s")
	v.SetDefault("engine.default_mode", "parallel")
	v.SetDefault("engine.event_buffer", 256)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", true)

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for Maestro.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "maestro")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "maestro")
	}
	return filepath.Join(home, ".config", "maestro")
}

// findProjectConfig searches for .maestro.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".maestro.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Engine: EngineConfig{
			MaxInFlight: 4,
			StepTimeout: 60 * time.Second,
			DefaultMode: "parallel",
			EventBuffer: 256,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
