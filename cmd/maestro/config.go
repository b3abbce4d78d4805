package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/maestroflow/maestro/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Maestro configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/maestro/config.yaml
Project-specific overrides can be placed in .maestro.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("anthropic.bedrock_region: %s\n", cfg.Anthropic.BedrockRegion)
	fmt.Printf("engine.max_in_flight: %d\n", cfg.Engine.MaxInFlight)
	fmt.Printf("engine.step_timeout: %s\n", cfg.Engine.StepTimeout)
	fmt.Printf("engine.default_mode: %s\n", cfg.Engine.DefaultMode)
	fmt.Printf("engine.event_buffer: %d\n", cfg.Engine.EventBuffer)
	fmt.Printf("retry.max_retries: %d\n", cfg.Retry.MaxRetries)
	fmt.Printf("retry.initial_delay: %s\n", cfg.Retry.InitialDelay)
	fmt.Printf("retry.max_delay: %s\n", cfg.Retry.MaxDelay)
	fmt.Printf("retry.jitter: %t\n", cfg.Retry.Jitter)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
	fmt.Printf("agents: %d registered\n", len(cfg.Agents))
	for _, a := range cfg.Agents {
		fmt.Printf("  - %s\n", a.ID)
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.max_tokens":
		return strconv.Itoa(cfg.Anthropic.MaxTokens), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.bedrock_region":
		return cfg.Anthropic.BedrockRegion, nil
	case "engine.max_in_flight":
		return strconv.Itoa(cfg.Engine.MaxInFlight), nil
	case "engine.step_timeout":
		return cfg.Engine.StepTimeout.String(), nil
	case "engine.default_mode":
		return cfg.Engine.DefaultMode, nil
	case "engine.event_buffer":
		return strconv.Itoa(cfg.Engine.EventBuffer), nil
	case "retry.max_retries":
		return strconv.Itoa(cfg.Retry.MaxRetries), nil
	case "retry.initial_delay":
		return cfg.Retry.InitialDelay.String(), nil
	case "retry.max_delay":
		return cfg.Retry.MaxDelay.String(), nil
	case "retry.jitter":
		return strconv.FormatBool(cfg.Retry.Jitter), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("max_tokens must be a positive integer")
		}
		cfg.Anthropic.MaxTokens = n
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("use_bedrock must be true or false")
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.bedrock_region":
		cfg.Anthropic.BedrockRegion = value
	case "engine.max_in_flight":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("max_in_flight must be a positive integer")
		}
		cfg.Engine.MaxInFlight = n
	case "engine.step_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("step_timeout must be a duration (e.g. 90s)")
		}
		cfg.Engine.StepTimeout = d
	case "engine.default_mode":
		switch value {
		case "sequential", "parallel", "staged":
			cfg.Engine.DefaultMode = value
		default:
			return fmt.Errorf("default_mode must be sequential, parallel, or staged")
		}
	case "engine.event_buffer":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("event_buffer must be a positive integer")
		}
		cfg.Engine.EventBuffer = n
	case "retry.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("max_retries must be a non-negative integer")
		}
		cfg.Retry.MaxRetries = n
	case "retry.initial_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("initial_delay must be a duration (e.g. 1s)")
		}
		cfg.Retry.InitialDelay = d
	case "retry.max_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("max_delay must be a duration (e.g. 30s)")
		}
		cfg.Retry.MaxDelay = d
	case "retry.jitter":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("jitter must be true or false")
		}
		cfg.Retry.Jitter = b
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("refresh_rate must be a duration (e.g. 100ms)")
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
