// Package dispatch invokes agents for individual steps, applying timeouts,
// bounded retries with exponential backoff, and directed-reference detection
// on agent output.
package dispatch

import "context"

// Invocation is one request to an agent.
type Invocation struct {
	// AgentID identifies the agent to invoke.
	AgentID string
	// TaskText is the instruction for the agent.
	TaskText string
	// Context is the working context the agent sees alongside the task.
	Context map[string]string
}

// AgentInvoker is the external agent invocation service. Implementations wrap
// a concrete provider; the dispatcher treats it as opaque.
type AgentInvoker interface {
	// Invoke runs the agent and returns its raw output. The context carries
	// the per-step timeout; implementations must honor cancellation.
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// InvokerFunc adapts a function to the AgentInvoker interface.
type InvokerFunc func(ctx context.Context, inv Invocation) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, inv Invocation) (string, error) {
	return f(ctx, inv)
}
