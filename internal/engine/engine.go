package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maestroflow/maestro/internal/audit"
	"github.com/maestroflow/maestro/internal/dispatch"
	"github.com/maestroflow/maestro/internal/graph"
	"github.com/maestroflow/maestro/internal/store"
	"github.com/maestroflow/maestro/pkg/models"
)

// Engine owns the lifecycle of executions: one control loop per execution id,
// fanning out step invocations and fanning results back in. Executions are
// fully independent; the only shared state is the store.
type Engine struct {
	store     store.Store
	recorder  *audit.Recorder
	publisher Publisher
	invoker   dispatch.AgentInvoker

	maxInFlight int
	stepTimeout time.Duration
	retryPolicy dispatch.RetryPolicy
	extractor   dispatch.ReferenceExtractor
	knownAgents map[string]bool

	mu   sync.RWMutex
	runs map[string]*run
	wg   sync.WaitGroup
}

// run is the in-memory state of one live control loop.
type run struct {
	exec      *models.Execution
	graph     *graph.DependencyGraph
	cancelled atomic.Bool
	done      chan struct{}

	mu   sync.Mutex
	wctx map[string]string
}

// contextSnapshot copies the working context for one dispatch.
func (r *run) contextSnapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.wctx))
	for k, v := range r.wctx {
		out[k] = v
	}
	return out
}

// foldOutput makes a completed step's output visible to downstream steps.
func (r *run) foldOutput(stepID, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wctx["steps."+stepID+".output"] = output
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the event publisher. Default is a 256-buffered emitter.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMaxInFlight bounds concurrent step dispatches in parallel mode.
func WithMaxInFlight(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxInFlight = n
		}
	}
}

// WithStepTimeout sets the per-attempt step timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithRetryPolicy sets the dispatcher retry policy.
func WithRetryPolicy(p dispatch.RetryPolicy) Option {
	return func(e *Engine) { e.retryPolicy = p }
}

// WithKnownAgents restricts executions to a roster of resolvable agent ids.
// Without a roster, any agent id is accepted and resolution is the invoker's
// problem.
func WithKnownAgents(ids []string) Option {
	return func(e *Engine) {
		e.knownAgents = make(map[string]bool, len(ids))
		for _, id := range ids {
			e.knownAgents[id] = true
		}
	}
}

// WithReferenceExtractor sets the directed-reference detection strategy.
func WithReferenceExtractor(x dispatch.ReferenceExtractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// New creates an Engine over the given store and agent invoker.
func New(st store.Store, invoker dispatch.AgentInvoker, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		recorder:    audit.NewRecorder(st, st),
		invoker:     invoker,
		maxInFlight: 4,
		stepTimeout: 60 * time.Second,
		retryPolicy: dispatch.DefaultRetryPolicy(),
		extractor:   dispatch.NewMentionExtractor(),
		runs:        make(map[string]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.publisher == nil {
		e.publisher = NewEventEmitter(256)
	}
	return e
}

// Recorder exposes the audit recorder for the management surface.
func (e *Engine) Recorder() *audit.Recorder {
	return e.recorder
}

// Submit creates and persists a pending execution from the given steps.
// Returns the generated execution id. templateID may be empty for ad-hoc
// executions.
func (e *Engine) Submit(templateID string, steps []*models.Step, mode models.ExecutionMode, wctx map[string]string) (string, error) {
	if !mode.Valid() {
		return "", &ValidationError{Reason: fmt.Sprintf("unknown execution mode %q", mode)}
	}

	execID := uuid.New().String()
	exec := &models.Execution{
		ID:         execID,
		TemplateID: templateID,
		Mode:       mode,
		Context:    wctx,
		Status:     models.ExecutionPending,
		CreatedAt:  time.Now(),
	}
	for i, s := range steps {
		copied := *s
		copied.ExecutionID = execID
		copied.Status = models.StepPending
		copied.Order = i
		exec.Steps = append(exec.Steps, &copied)
	}

	if _, err := e.buildGraph(exec); err != nil {
		return "", err
	}
	if err := e.store.CreateExecution(exec); err != nil {
		return "", fmt.Errorf("persist execution: %w", err)
	}
	return execID, nil
}

// buildGraph validates the execution and returns its dependency graph.
// Fails with ValidationError before any step runs.
func (e *Engine) buildGraph(exec *models.Execution) (*graph.DependencyGraph, error) {
	if len(exec.Steps) == 0 {
		return nil, &ValidationError{Reason: "execution has no steps"}
	}
	if !exec.Mode.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown execution mode %q", exec.Mode)}
	}

	seen := make(map[string]bool, len(exec.Steps))
	for _, s := range exec.Steps {
		if s.ID == "" {
			return nil, &ValidationError{Reason: "step with empty id"}
		}
		if seen[s.ID] {
			return nil, &ValidationError{Reason: fmt.Sprintf("duplicate step id %q", s.ID)}
		}
		seen[s.ID] = true
		if s.AgentID == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("step %s: empty agent id", s.ID)}
		}
	}

	if e.knownAgents != nil {
		for _, s := range exec.Steps {
			if !e.knownAgents[s.AgentID] {
				return nil, &ValidationError{Reason: fmt.Sprintf("step %s: agent %q is not resolvable", s.ID, s.AgentID)}
			}
		}
	}

	g := graph.New()
	if err := g.Build(exec.Steps); err != nil {
		return nil, &ValidationError{Reason: "bad step graph", Err: err}
	}
	return g, nil
}

// Start validates the execution and begins its control loop. Fails
// synchronously with ValidationError before any step runs if validation
// fails, and with ErrAlreadyRunning if a loop already exists for this id.
func (e *Engine) Start(ctx context.Context, executionID string) error {
	exec, err := e.store.GetExecution(executionID)
	if err != nil {
		return fmt.Errorf("load execution: %w", err)
	}
	if exec.Status.Terminal() {
		return &ValidationError{Reason: fmt.Sprintf("execution %s already %s", executionID, exec.Status)}
	}

	g, err := e.buildGraph(exec)
	if err != nil {
		return err
	}

	r := &run{
		exec:  exec,
		graph: g,
		done:  make(chan struct{}),
		wctx:  make(map[string]string, len(exec.Context)),
	}
	for k, v := range exec.Context {
		r.wctx[k] = v
	}

	e.mu.Lock()
	if _, exists := e.runs[executionID]; exists {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.runs[executionID] = r
	e.mu.Unlock()

	if err := e.store.UpdateExecutionStatus(executionID, models.ExecutionRunning); err != nil {
		e.unregister(executionID)
		return fmt.Errorf("mark execution running: %w", err)
	}
	exec.Status = models.ExecutionRunning

	// Steps with dependencies start out blocked.
	for _, s := range exec.Steps {
		if len(s.DependsOn) > 0 {
			if err := e.store.UpdateStepStatus(executionID, s.ID, models.StepBlocked); err == nil {
				s.Status = models.StepBlocked
			}
		}
	}

	e.recorder.Record(audit.Event{
		ExecutionID: executionID,
		Action:      "execution_started",
		Status:      string(models.ExecutionRunning),
		Message:     fmt.Sprintf("mode=%s steps=%d", exec.Mode, len(exec.Steps)),
	})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.drive(ctx, r)
	}()

	return nil
}

// Cancel marks an execution cancelled. Cooperative: the control loop checks
// the flag before every dispatch decision; in-flight steps finish but their
// results are discarded on arrival.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	r, ok := e.runs[executionID]
	e.mu.RUnlock()
	if !ok {
		return ErrNotRunning
	}

	if r.cancelled.CompareAndSwap(false, true) {
		e.recorder.Record(audit.Event{
			ExecutionID: executionID,
			Action:      "cancel_requested",
			Message:     "no new steps will be dispatched",
		})
	}
	return nil
}

// Status returns a read-only snapshot of an execution from the store.
func (e *Engine) Status(executionID string) (ExecutionView, error) {
	exec, err := e.store.GetExecution(executionID)
	if err != nil {
		return ExecutionView{}, err
	}
	return NewExecutionView(exec), nil
}

// Wait returns a channel closed when the execution's control loop finishes.
// For executions without a live loop the channel is already closed.
func (e *Engine) Wait(executionID string) <-chan struct{} {
	e.mu.RLock()
	r, ok := e.runs[executionID]
	e.mu.RUnlock()
	if ok {
		return r.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// RecoverStale marks executions abandoned by a previous process as failed.
// Called once at startup, before any Start.
func (e *Engine) RecoverStale() (int64, error) {
	return e.store.RecoverStale()
}

// Stop waits for all control loops to finish.
func (e *Engine) Stop() {
	e.wg.Wait()
}

// Running returns the number of live control loops.
func (e *Engine) Running() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.runs)
}

func (e *Engine) unregister(executionID string) {
	e.mu.Lock()
	delete(e.runs, executionID)
	e.mu.Unlock()
}

// publish emits an event stamped with the current progress.
func (e *Engine) publish(r *run, ev Event) {
	ev.ExecutionID = r.exec.ID
	ev.Timestamp = time.Now()
	ev.Progress = Progress(r.exec.Steps).Percent
	e.publisher.Publish(ev)
}

// persistStep writes a step update, logging rather than failing the loop on
// store errors; execution correctness is primary over durability.
func (e *Engine) persistStep(s *models.Step) {
	if err := e.store.UpdateStep(s); err != nil {
		log.Printf("[engine] WARNING: failed to persist step %s/%s: %v", s.ExecutionID, s.ID, err)
	}
}
