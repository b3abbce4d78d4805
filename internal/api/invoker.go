package api

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/maestroflow/maestro/internal/config"
	"github.com/maestroflow/maestro/internal/dispatch"
)

// Invoker dispatches step tasks to Claude, one message per invocation. Each
// agent in the roster gets its own system prompt and optional model
// override; the working context travels in the user message so downstream
// steps see upstream outputs.
type Invoker struct {
	client    *Client
	maxTokens int64
	agents    map[string]config.AgentConfig
}

// Compile-time check that Invoker satisfies the dispatch contract.
var _ dispatch.AgentInvoker = (*Invoker)(nil)

// NewInvoker creates an Invoker over the given client and agent roster.
func NewInvoker(client *Client, maxTokens int, agents []config.AgentConfig) *Invoker {
	roster := make(map[string]config.AgentConfig, len(agents))
	for _, a := range agents {
		roster[a.ID] = a
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Invoker{
		client:    client,
		maxTokens: int64(maxTokens),
		agents:    roster,
	}
}

// Invoke sends the step's task to the bound agent and returns the text of
// the response. The error is retryable by the dispatcher; rate limits and
// transient API failures surface here unchanged.
func (i *Invoker) Invoke(ctx context.Context, inv dispatch.Invocation) (string, error) {
	agent, ok := i.agents[inv.AgentID]
	if !ok {
		// An unknown agent still gets a generic invocation; roster
		// enforcement happens at validation time, not dispatch time.
		agent = config.AgentConfig{ID: inv.AgentID}
	}

	model := i.client.Model()
	if agent.Model != "" {
		model = anthropic.Model(agent.Model)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: i.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(renderPrompt(inv))),
		},
	}
	if agent.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: agent.SystemPrompt}}
	}

	resp, err := i.client.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	i.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var result strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.WriteString(variant.Text)
		}
	}

	return result.String(), nil
}

// renderPrompt assembles the user message: the task text followed by the
// working context in sorted key order so prompts are reproducible.
func renderPrompt(inv dispatch.Invocation) string {
	var b strings.Builder
	b.WriteString(inv.TaskText)

	if len(inv.Context) > 0 {
		keys := make([]string, 0, len(inv.Context))
		for k := range inv.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n\n## Working context\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n### %s\n%s\n", k, inv.Context[k])
		}
	}

	return b.String()
}
