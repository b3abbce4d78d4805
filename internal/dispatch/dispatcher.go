package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/maestroflow/maestro/pkg/models"
)

// TimeoutError indicates a single attempt exceeded the per-step timeout.
type TimeoutError struct {
	AgentID string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent %s timed out after %s", e.AgentID, e.Timeout)
}

// InvocationError indicates the agent invocation service returned an error.
type InvocationError struct {
	AgentID string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent %s invocation failed: %v", e.AgentID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// RetryPolicy bounds the dispatcher's retry behavior.
type RetryPolicy struct {
	// MaxRetries is how many times a failed attempt is retried. A budget of 3
	// means up to 4 attempts total.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Jitter adds up to 25% random variance to each delay when set.
	Jitter bool
}

// DefaultRetryPolicy returns the standard policy: three retries, doubling
// from one second, capped at thirty.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       true,
	}
}

// delay computes the backoff before retry attempt n (1-indexed).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.InitialDelay * time.Duration(1<<uint(attempt-1))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d >= 4 {
		d += time.Duration(rand.Int63n(int64(d) / 4))
	}
	return d
}

// StepResult is the outcome of dispatching one step.
type StepResult struct {
	// Status is completed or failed.
	Status models.StepStatus
	// Output is the agent's raw output on success.
	Output string
	// Err is the last error after exhausting the retry budget.
	Err error
	// Retries is how many retries were consumed.
	Retries int
	// References are agent ids the output mentions, for communication
	// record creation.
	References []string
}

// CommRequest asks the recorder to create a communication record. The ID is
// derived from step id + target agent so replays are deduplicated downstream.
type CommRequest struct {
	ID        string
	FromAgent string
	ToAgent   string
	Message   string
}

// Dispatcher runs single steps against the agent invocation service.
type Dispatcher struct {
	invoker   AgentInvoker
	extractor ReferenceExtractor
	timeout   time.Duration
	policy    RetryPolicy
	// onRetry, if set, is called before each retry with the attempt number.
	onRetry func(step *models.Step, attempt int, err error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-attempt timeout. Default is 60s.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(dp *Dispatcher) { dp.policy = p }
}

// WithReferenceExtractor sets the strategy for detecting directed agent
// references in output. Default is the @mention regex extractor.
func WithReferenceExtractor(e ReferenceExtractor) Option {
	return func(dp *Dispatcher) { dp.extractor = e }
}

// WithRetryCallback sets a hook invoked before each retry, used by the engine
// to emit retry events and audit records.
func WithRetryCallback(fn func(step *models.Step, attempt int, err error)) Option {
	return func(dp *Dispatcher) { dp.onRetry = fn }
}

// New creates a Dispatcher around the given invoker.
func New(invoker AgentInvoker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		invoker:   invoker,
		extractor: NewMentionExtractor(),
		timeout:   60 * time.Second,
		policy:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch invokes the agent for one step, retrying transient failures with
// exponential backoff. It never returns an error: the outcome is folded into
// the StepResult so a failed step stays local to its branch.
func (d *Dispatcher) Dispatch(ctx context.Context, step *models.Step, wctx map[string]string) StepResult {
	var lastErr error

	for attempt := 0; attempt <= d.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if d.onRetry != nil {
				d.onRetry(step, attempt, lastErr)
			}
			delay := d.policy.delay(attempt)
			log.Printf("[dispatch] step %s retry %d/%d after %v", step.ID, attempt, d.policy.MaxRetries, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return StepResult{Status: models.StepFailed, Err: ctx.Err(), Retries: attempt - 1}
			}
		}

		output, err := d.attempt(ctx, step, wctx)
		if err == nil {
			return StepResult{
				Status:     models.StepCompleted,
				Output:     output,
				Retries:    attempt,
				References: d.extractor.Extract(output),
			}
		}
		lastErr = err

		// The caller going away is not a transient agent failure.
		if ctx.Err() != nil {
			return StepResult{Status: models.StepFailed, Err: ctx.Err(), Retries: attempt}
		}
	}

	return StepResult{Status: models.StepFailed, Err: lastErr, Retries: d.policy.MaxRetries}
}

// attempt runs a single invocation under the per-step timeout.
func (d *Dispatcher) attempt(ctx context.Context, step *models.Step, wctx map[string]string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	output, err := d.invoker.Invoke(attemptCtx, Invocation{
		AgentID:  step.AgentID,
		TaskText: step.TaskText,
		Context:  wctx,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", &TimeoutError{AgentID: step.AgentID, Timeout: d.timeout}
		}
		return "", &InvocationError{AgentID: step.AgentID, Err: err}
	}
	return output, nil
}

// CommRequests derives communication record creation requests from a step's
// result. Record ids are keyed by step id + target agent, so a replayed
// dispatch produces identical requests and the store deduplicates them.
func CommRequests(step *models.Step, result StepResult) []CommRequest {
	var out []CommRequest
	for _, target := range result.References {
		if target == step.AgentID {
			continue
		}
		out = append(out, CommRequest{
			ID:        fmt.Sprintf("%s:%s", step.ID, target),
			FromAgent: step.AgentID,
			ToAgent:   target,
			Message:   result.Output,
		})
	}
	return out
}
