package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// ResolveAPIKey returns the Anthropic API key, checking the environment
// first and the config second. Bedrock-backed configs need no key; callers
// should check Config.Anthropic.UseBedrock before requiring one.
func ResolveAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}

	if cfg != nil && cfg.Anthropic.APIKey != "" {
		// Expand any remaining env var references.
		key := os.ExpandEnv(cfg.Anthropic.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", ErrNoAPIKey
}

// ValidateAPIKey performs format checks on an API key without calling the
// API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey returns a display-safe version of the key: the "sk-ant-"
// prefix and the last four characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "sk-ant-..."
	}
	return key[:7] + "..." + key[len(key)-4:]
}
