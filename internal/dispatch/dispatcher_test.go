package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maestroflow/maestro/pkg/models"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func testStep() *models.Step {
	return &models.Step{
		ID:       "draft",
		AgentID:  "writer",
		TaskText: "write the summary",
		Status:   models.StepPending,
	}
}

func TestDispatch_Success(t *testing.T) {
	d := New(InvokerFunc(func(ctx context.Context, inv Invocation) (string, error) {
		if inv.AgentID != "writer" {
			t.Errorf("agent id = %q, want writer", inv.AgentID)
		}
		if inv.Context["topic"] != "birds" {
			t.Errorf("working context not passed through: %v", inv.Context)
		}
		return "done", nil
	}), WithRetryPolicy(fastPolicy(3)))

	res := d.Dispatch(context.Background(), testStep(), map[string]string{"topic": "birds"})

	if res.Status != models.StepCompleted {
		t.Fatalf("status = %q, want completed (err: %v)", res.Status, res.Err)
	}
	if res.Output != "done" {
		t.Errorf("output = %q", res.Output)
	}
	if res.Retries != 0 {
		t.Errorf("retries = %d, want 0", res.Retries)
	}
}

func TestDispatch_SucceedsWithinRetryBudget(t *testing.T) {
	var calls atomic.Int32
	d := New(InvokerFunc(func(ctx context.Context, inv Invocation) (string, error) {
		if calls.Add(1) <= 2 {
			return "", errors.New("transient")
		}
		return "third time lucky", nil
	}), WithRetryPolicy(fastPolicy(3)))

	res := d.Dispatch(context.Background(), testStep(), nil)

	if res.Status != models.StepCompleted {
		t.Fatalf("status = %q, want completed (err: %v)", res.Status, res.Err)
	}
	if res.Retries != 2 {
		t.Errorf("retries = %d, want 2", res.Retries)
	}
	if calls.Load() != 3 {
		t.Errorf("invocations = %d, want 3", calls.Load())
	}
}

func TestDispatch_ExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	var retryHook atomic.Int32
	d := New(InvokerFunc(func(ctx context.Context, inv Invocation) (string, error) {
		calls.Add(1)
		return "", errors.New("agent is down")
	}),
		WithRetryPolicy(fastPolicy(2)),
		WithRetryCallback(func(step *models.Step, attempt int, err error) {
			retryHook.Add(1)
		}),
	)

	res := d.Dispatch(context.Background(), testStep(), nil)

	if res.Status != models.StepFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	var invErr *InvocationError
	if !errors.As(res.Err, &invErr) {
		t.Errorf("err = %v, want InvocationError", res.Err)
	}
	if calls.Load() != 3 { // 1 attempt + 2 retries
		t.Errorf("invocations = %d, want 3", calls.Load())
	}
	if retryHook.Load() != 2 {
		t.Errorf("retry callback fired %d times, want 2", retryHook.Load())
	}
}

func TestDispatch_Timeout(t *testing.T) {
	d := New(InvokerFunc(func(ctx context.Context, inv Invocation) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}),
		WithTimeout(5*time.Millisecond),
		WithRetryPolicy(fastPolicy(1)),
	)

	res := d.Dispatch(context.Background(), testStep(), nil)

	if res.Status != models.StepFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	var toErr *TimeoutError
	if !errors.As(res.Err, &toErr) {
		t.Errorf("err = %v, want TimeoutError", res.Err)
	}
}

func TestDispatch_CancelledCallerStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	d := New(InvokerFunc(func(ctx context.Context, inv Invocation) (string, error) {
		calls.Add(1)
		cancel()
		return "", errors.New("failed")
	}), WithRetryPolicy(fastPolicy(5)))

	res := d.Dispatch(ctx, testStep(), nil)

	if res.Status != models.StepFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if calls.Load() != 1 {
		t.Errorf("invocations = %d, want 1 (no retries after cancel)", calls.Load())
	}
}

func TestDispatch_ExtractsReferences(t *testing.T) {
	d := New(InvokerFunc(func(ctx context.Context, inv Invocation) (string, error) {
		return "passing to @reviewer and @editor for next steps", nil
	}), WithRetryPolicy(fastPolicy(0)))

	step := testStep()
	res := d.Dispatch(context.Background(), step, nil)

	want := []string{"editor", "reviewer"}
	if len(res.References) != 2 || res.References[0] != want[0] || res.References[1] != want[1] {
		t.Errorf("references = %v, want %v", res.References, want)
	}

	reqs := CommRequests(step, res)
	if len(reqs) != 2 {
		t.Fatalf("got %d comm requests, want 2", len(reqs))
	}
	if reqs[1].ID != "draft:reviewer" {
		t.Errorf("comm id = %q, want draft:reviewer (step+target key)", reqs[1].ID)
	}
}

func TestCommRequests_SkipsSelfReference(t *testing.T) {
	step := testStep()
	res := StepResult{References: []string{"writer", "reviewer"}, Output: "ok"}

	reqs := CommRequests(step, res)
	if len(reqs) != 1 || reqs[0].ToAgent != "reviewer" {
		t.Errorf("self-reference not skipped: %v", reqs)
	}
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 4 * time.Second}

	if got := p.delay(1); got != time.Second {
		t.Errorf("delay(1) = %v, want 1s", got)
	}
	if got := p.delay(2); got != 2*time.Second {
		t.Errorf("delay(2) = %v, want 2s", got)
	}
	if got := p.delay(10); got != 4*time.Second {
		t.Errorf("delay(10) = %v, want cap 4s", got)
	}
}
