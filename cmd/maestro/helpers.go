package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/maestroflow/maestro/internal/api"
	"github.com/maestroflow/maestro/internal/config"
	"github.com/maestroflow/maestro/internal/dispatch"
	"github.com/maestroflow/maestro/internal/engine"
	"github.com/maestroflow/maestro/internal/store"
)

// openStore opens the project database if the current directory has a
// .maestro directory, the global database otherwise. The schema is migrated
// before the store is returned.
func openStore() (*store.DB, error) {
	dbPath := store.GlobalDBPath()
	if cwd, err := os.Getwd(); err == nil {
		projectPath := store.ProjectDBPath(cwd)
		if _, err := os.Stat(filepath.Dir(projectPath)); err == nil {
			dbPath = projectPath
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// controlDir returns the directory watched for out-of-band signals.
func controlDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ".maestro"
	}
	return filepath.Join(cwd, ".maestro")
}

// buildInvoker creates the Claude-backed invoker from configuration.
func buildInvoker(cfg *config.Config) (*api.Invoker, error) {
	apiKey := ""
	if !cfg.Anthropic.UseBedrock {
		key, err := config.ResolveAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w\n\nSet ANTHROPIC_API_KEY or run 'maestro config anthropic.api_key <key>'", err)
		}
		apiKey = key
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.BedrockRegion,
	})
	if err != nil {
		return nil, err
	}

	return api.NewInvoker(client, cfg.Anthropic.MaxTokens, cfg.Agents), nil
}

// buildEngine assembles the engine from configuration, an invoker, and a
// publisher.
func buildEngine(cfg *config.Config, db *store.DB, invoker dispatch.AgentInvoker, pub engine.Publisher, maxInFlight int) *engine.Engine {
	if maxInFlight <= 0 {
		maxInFlight = cfg.Engine.MaxInFlight
	}

	opts := []engine.Option{
		engine.WithPublisher(pub),
		engine.WithMaxInFlight(maxInFlight),
		engine.WithStepTimeout(cfg.Engine.StepTimeout),
		engine.WithRetryPolicy(dispatch.RetryPolicy{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Jitter:       cfg.Retry.Jitter,
		}),
	}
	if len(cfg.Agents) > 0 {
		opts = append(opts, engine.WithKnownAgents(cfg.AgentIDs()))
	}

	return engine.New(db, invoker, opts...)
}

// parseContextPairs turns repeated key=value flags into the submission
// context.
func parseContextPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		eq := -1
		for i, c := range pair {
			if c == '=' {
				eq = i
				break
			}
		}
		if eq <= 0 {
			return nil, fmt.Errorf("invalid context pair %q, expected key=value", pair)
		}
		out[pair[:eq]] = pair[eq+1:]
	}
	return out, nil
}
