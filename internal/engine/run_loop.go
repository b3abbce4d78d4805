package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/maestroflow/maestro/internal/audit"
	"github.com/maestroflow/maestro/internal/dispatch"
	"github.com/maestroflow/maestro/pkg/models"
)

// outcome is a finished dispatch fanned back into the control loop.
type outcome struct {
	step   *models.Step
	result dispatch.StepResult
}

// retryNote is a retry attempt reported back into the control loop. Retry
// events and audit records are emitted from the loop goroutine, never the
// dispatch goroutine: the loop is the single writer of step state, and event
// publishing reads every step's status to stamp progress.
type retryNote struct {
	step    *models.Step
	attempt int
	err     error
}

// drive runs one execution to a terminal state. It is the only writer of the
// execution's steps and graph; dispatch goroutines do nothing but invoke the
// agent and send results and retry notifications back.
func (e *Engine) drive(ctx context.Context, r *run) {
	defer e.unregister(r.exec.ID)
	defer close(r.done)

	results := make(chan outcome)
	retries := make(chan retryNote)

	d := dispatch.New(e.invoker,
		dispatch.WithTimeout(e.stepTimeout),
		dispatch.WithRetryPolicy(e.retryPolicy),
		dispatch.WithReferenceExtractor(e.extractor),
		dispatch.WithRetryCallback(func(step *models.Step, attempt int, err error) {
			retries <- retryNote{step: step, attempt: attempt, err: err}
		}),
	)

	switch r.exec.Mode {
	case models.ModeSequential:
		e.driveSequential(ctx, r, d, results, retries)
	case models.ModeStaged:
		e.driveStaged(ctx, r, d, results, retries)
	default:
		e.driveParallel(ctx, r, d, results, retries)
	}

	e.finish(ctx, r)
}

// awaitOutcome blocks for the next finished dispatch, folding in retry
// notifications that arrive while waiting.
func (e *Engine) awaitOutcome(r *run, results chan outcome, retries chan retryNote) outcome {
	for {
		select {
		case n := <-retries:
			e.handleRetry(r, n)
		case out := <-results:
			return out
		}
	}
}

// handleRetry records and publishes one retry attempt.
func (e *Engine) handleRetry(r *run, n retryNote) {
	e.recorder.Record(audit.Event{
		ExecutionID: r.exec.ID,
		StepID:      n.step.ID,
		AgentID:     n.step.AgentID,
		Action:      "step_retry",
		Status:      string(models.StepRunning),
		Message:     fmt.Sprintf("attempt %d: %v", n.attempt, n.err),
	})
	e.publish(r, Event{
		Type:    EventStepRetrying,
		StepID:  n.step.ID,
		AgentID: n.step.AgentID,
		Status:  string(models.StepRunning),
		Message: fmt.Sprintf("retry %d", n.attempt),
		Error:   n.err,
	})
}

// driveSequential dispatches exactly one runnable step at a time, in
// definition order.
func (e *Engine) driveSequential(ctx context.Context, r *run, d *dispatch.Dispatcher, results chan outcome, retries chan retryNote) {
	dispatched := make(map[string]bool)

	for !r.cancelled.Load() && ctx.Err() == nil {
		ready := e.runnable(r, dispatched)
		if len(ready) == 0 {
			return
		}

		e.dispatchStep(ctx, r, d, ready[0], results)
		dispatched[ready[0]] = true
		e.handleOutcome(r, e.awaitOutcome(r, results, retries))
	}
}

// driveParallel dispatches the whole runnable set concurrently, bounded by
// maxInFlight, refilling capacity as steps finish.
func (e *Engine) driveParallel(ctx context.Context, r *run, d *dispatch.Dispatcher, results chan outcome, retries chan retryNote) {
	dispatched := make(map[string]bool)
	inflight := 0

	for {
		if !r.cancelled.Load() && ctx.Err() == nil {
			for _, id := range e.runnable(r, dispatched) {
				if inflight >= e.maxInFlight {
					break
				}
				e.dispatchStep(ctx, r, d, id, results)
				dispatched[id] = true
				inflight++
			}
		}

		if inflight == 0 {
			return
		}

		e.handleOutcome(r, e.awaitOutcome(r, results, retries))
		inflight--
	}
}

// driveStaged dispatches one dependency stage at a time and holds a hard
// barrier: the next stage starts only when every step of the current one is
// terminal, so downstream agents see a fully-formed context from every peer.
func (e *Engine) driveStaged(ctx context.Context, r *run, d *dispatch.Dispatcher, results chan outcome, retries chan retryNote) {
	stages, err := r.graph.Stages()
	if err != nil {
		// Build already rejected cycles; this is unreachable in practice.
		log.Printf("[engine] stage computation failed for %s: %v", r.exec.ID, err)
		return
	}

	for _, stage := range stages {
		if r.cancelled.Load() || ctx.Err() != nil {
			return
		}

		inflight := 0
		for _, id := range stage {
			step := r.graph.Step(id)
			if step == nil || step.Status.Terminal() {
				// Skipped earlier by failure propagation.
				continue
			}
			e.dispatchStep(ctx, r, d, id, results)
			inflight++
		}

		for inflight > 0 {
			e.handleOutcome(r, e.awaitOutcome(r, results, retries))
			inflight--
		}
	}
}

// runnable returns ready steps that have not been dispatched yet.
func (e *Engine) runnable(r *run, dispatched map[string]bool) []string {
	var out []string
	for _, id := range r.graph.Ready() {
		if !dispatched[id] {
			out = append(out, id)
		}
	}
	return out
}

// dispatchStep transitions a step to running and fans out its invocation.
func (e *Engine) dispatchStep(ctx context.Context, r *run, d *dispatch.Dispatcher, stepID string, results chan outcome) {
	step := r.graph.Step(stepID)
	now := time.Now()
	step.Status = models.StepRunning
	step.StartedAt = &now
	e.persistStep(step)

	e.recorder.Record(audit.Event{
		ExecutionID: r.exec.ID,
		StepID:      step.ID,
		AgentID:     step.AgentID,
		Action:      "step_started",
		Status:      string(models.StepRunning),
	})
	e.publish(r, Event{
		Type:    EventStepStarted,
		StepID:  step.ID,
		AgentID: step.AgentID,
		Status:  string(models.StepRunning),
	})

	wctx := r.contextSnapshot()
	go func() {
		results <- outcome{step: step, result: d.Dispatch(ctx, step, wctx)}
	}()
}

// handleOutcome folds one finished dispatch back into the execution. Runs on
// the control loop goroutine, which is the single writer of graph and steps.
func (e *Engine) handleOutcome(r *run, out outcome) {
	step := out.step
	res := out.result
	now := time.Now()

	if r.cancelled.Load() {
		// The invocation was allowed to finish; its result is discarded.
		step.Status = models.StepSkipped
		step.CompletedAt = &now
		step.RetryCount = res.Retries
		e.persistStep(step)
		r.graph.MarkFailed(step.ID)
		e.recorder.Record(audit.Event{
			ExecutionID: r.exec.ID,
			StepID:      step.ID,
			AgentID:     step.AgentID,
			Action:      "result_discarded",
			Status:      string(models.StepSkipped),
			Message:     "execution cancelled while step was in flight",
		})
		e.publish(r, Event{
			Type:    EventStepSkipped,
			StepID:  step.ID,
			AgentID: step.AgentID,
			Status:  string(models.StepSkipped),
			Message: "result discarded",
		})
		return
	}

	step.CompletedAt = &now
	step.RetryCount = res.Retries

	if res.Status == models.StepCompleted {
		step.Status = models.StepCompleted
		step.Output = res.Output
		e.persistStep(step)
		r.graph.MarkCompleted(step.ID)
		r.foldOutput(step.ID, res.Output)
		e.recordCommunications(r, step, res)

		e.recorder.Record(audit.Event{
			ExecutionID: r.exec.ID,
			StepID:      step.ID,
			AgentID:     step.AgentID,
			Action:      "step_completed",
			Status:      string(models.StepCompleted),
		})
		e.publish(r, Event{
			Type:    EventStepCompleted,
			StepID:  step.ID,
			AgentID: step.AgentID,
			Status:  string(models.StepCompleted),
		})
		e.publish(r, Event{Type: EventStepProgress, StepID: step.ID})
		return
	}

	step.Status = models.StepFailed
	if res.Err != nil {
		step.Error = res.Err.Error()
	}
	e.persistStep(step)
	r.graph.MarkFailed(step.ID)

	e.recorder.Record(audit.Event{
		ExecutionID: r.exec.ID,
		StepID:      step.ID,
		AgentID:     step.AgentID,
		Action:      "step_failed",
		Status:      string(models.StepFailed),
		Message:     step.Error,
	})
	e.publish(r, Event{
		Type:    EventStepFailed,
		StepID:  step.ID,
		AgentID: step.AgentID,
		Status:  string(models.StepFailed),
		Error:   res.Err,
	})

	e.propagateSkips(r, step.ID)
	e.publish(r, Event{Type: EventStepProgress, StepID: step.ID})
}

// propagateSkips marks every transitive dependent of a failed step as
// skipped. Failure propagates downstream only; unrelated branches continue.
func (e *Engine) propagateSkips(r *run, failedID string) {
	for _, depID := range r.graph.TransitiveDependents(failedID) {
		dep := r.graph.Step(depID)
		if dep == nil || dep.Status.Terminal() || dep.Status == models.StepRunning {
			continue
		}

		now := time.Now()
		dep.Status = models.StepSkipped
		dep.CompletedAt = &now
		e.persistStep(dep)
		r.graph.MarkFailed(depID)

		e.recorder.Record(audit.Event{
			ExecutionID: r.exec.ID,
			StepID:      dep.ID,
			AgentID:     dep.AgentID,
			Action:      "step_skipped",
			Status:      string(models.StepSkipped),
			Message:     "dependency failed: " + failedID,
		})
		e.publish(r, Event{
			Type:    EventStepSkipped,
			StepID:  dep.ID,
			AgentID: dep.AgentID,
			Status:  string(models.StepSkipped),
			Message: "dependency failed: " + failedID,
		})
	}
}

// recordCommunications creates communication records for directed references
// in the step's output and attaches this output as the response to any
// unanswered communication addressed to the step's agent.
func (e *Engine) recordCommunications(r *run, step *models.Step, res dispatch.StepResult) {
	for _, req := range dispatch.CommRequests(step, res) {
		e.recorder.RecordCommunication(r.exec.ID, req.ID, req.FromAgent, req.ToAgent, req.Message)
	}

	comms, err := e.recorder.Communications(r.exec.ID)
	if err != nil {
		log.Printf("[engine] WARNING: failed to list communications for %s: %v", r.exec.ID, err)
		return
	}
	for _, c := range comms {
		if c.ToAgent == step.AgentID && !c.Answered() {
			if err := e.recorder.AttachResponse(c.ID, res.Output); err != nil {
				log.Printf("[engine] WARNING: failed to attach response to %s: %v", c.ID, err)
			}
		}
	}
}

// finish computes and records the execution's terminal state.
func (e *Engine) finish(ctx context.Context, r *run) {
	view := Progress(r.exec.Steps)

	var final models.ExecutionStatus
	var eventType EventType
	switch {
	case r.cancelled.Load() || ctx.Err() != nil:
		final = models.ExecutionCancelled
		eventType = EventExecutionCancelled
	case view.Completed == view.Total:
		final = models.ExecutionCompleted
		eventType = EventExecutionCompleted
	default:
		final = models.ExecutionFailed
		eventType = EventExecutionFailed
	}

	// Steps never dispatched before a cancel are terminally skipped.
	if final == models.ExecutionCancelled {
		for _, s := range r.exec.Steps {
			if s.Status.Terminal() {
				continue
			}
			s.Status = models.StepSkipped
			e.persistStep(s)
			r.graph.MarkFailed(s.ID)
		}
	}

	if err := e.store.UpdateExecutionStatus(r.exec.ID, final); err != nil {
		log.Printf("[engine] WARNING: failed to persist terminal status for %s: %v", r.exec.ID, err)
	}
	r.exec.Status = final

	e.recorder.Record(audit.Event{
		ExecutionID: r.exec.ID,
		Action:      string(eventType),
		Status:      string(final),
		Message:     fmt.Sprintf("completed=%d failed=%d skipped=%d total=%d", view.Completed, view.Failed, view.Skipped, view.Total),
	})
	e.publish(r, Event{
		Type:   eventType,
		Status: string(final),
	})
}
