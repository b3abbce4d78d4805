// Package graph provides the dependency resolver for step scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/maestroflow/maestro/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the step graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph represents a directed acyclic graph of step dependencies.
// Steps are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps step ID to the step itself.
	nodes map[string]*models.Step
	// edges maps step ID to IDs of steps it depends on (is blocked by).
	edges map[string][]string
	// order preserves definition order for deterministic tie-breaking.
	order []string
	// completed tracks which steps have been marked completed.
	completed map[string]bool
	// failed tracks steps that failed or were skipped, so dependents
	// can be ruled out of the runnable set.
	failed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Step),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of steps.
// Returns an error if a cycle is detected or dependencies reference unknown steps.
func (g *DependencyGraph) Build(steps []*models.Step) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d steps", len(steps))

	// First pass: register all steps as nodes.
	for _, step := range steps {
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
		g.order = append(g.order, step.ID)
	}

	// Second pass: build edges from DependsOn fields.
	for _, step := range steps {
		for _, depID := range step.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("step %s depends on unknown step %s", step.ID, depID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	// Check for cycles (use internal method since we hold the lock).
	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.debugLog("[graph.Build] graph built successfully with %d nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)
	for id := range g.nodes {
		colors[id] = 0
	}

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
			// color == 2 means already processed, skip.
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}

	return false
}

// Stages computes topological layers via Kahn's algorithm: stage k contains
// steps whose dependencies all live in stages 0..k-1. Steps within a stage are
// ordered by definition order. Returns ErrCycleDetected if steps remain after
// no more can be extracted.
func (g *DependencyGraph) Stages() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Unresolved dependency counts.
	remaining := make(map[string]int, len(g.nodes))
	for id, deps := range g.edges {
		remaining[id] = len(deps)
	}

	// Reverse edges: dependency -> dependents.
	dependents := make(map[string][]string)
	for id, deps := range g.edges {
		for _, depID := range deps {
			dependents[depID] = append(dependents[depID], id)
		}
	}

	var stages [][]string
	placed := 0

	for placed < len(g.nodes) {
		var stage []string
		for _, id := range g.order {
			if count, ok := remaining[id]; ok && count == 0 {
				stage = append(stage, id)
			}
		}
		if len(stage) == 0 {
			return nil, ErrCycleDetected
		}

		for _, id := range stage {
			delete(remaining, id)
			for _, dep := range dependents[id] {
				remaining[dep]--
			}
		}

		stages = append(stages, stage)
		placed += len(stage)
	}

	return stages, nil
}

// Ready returns step IDs whose dependencies are all completed and that are not
// themselves completed, failed, or skipped. Results follow definition order so
// sequential mode is deterministic.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] || g.failed[id] {
			continue
		}

		satisfied := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				satisfied = false
				break
			}
		}

		if satisfied {
			ready = append(ready, id)
		}
	}

	g.debugLog("[graph.Ready] returning %d ready steps: %v", len(ready), ready)
	return ready
}

// MarkCompleted marks a step as completed, unblocking its dependents.
func (g *DependencyGraph) MarkCompleted(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[stepID] = true
}

// MarkFailed marks a step as failed (or skipped). Its dependents will never
// become ready.
func (g *DependencyGraph) MarkFailed(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed[stepID] = true
}

// Settled returns true when every step is either completed or failed/skipped,
// i.e. the runnable set is permanently empty.
func (g *DependencyGraph) Settled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id := range g.nodes {
		if !g.completed[id] && !g.failed[id] {
			return false
		}
	}
	return true
}

// Step returns the step for a given ID, or nil if not found.
func (g *DependencyGraph) Step(stepID string) *models.Step {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[stepID]
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of steps that the given step depends on.
func (g *DependencyGraph) Dependencies(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[stepID]
}

// Dependents returns the IDs of steps that directly depend on the given step.
func (g *DependencyGraph) Dependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(stepID)
}

func (g *DependencyGraph) dependentsLocked(stepID string) []string {
	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// TransitiveDependents returns every step that depends on the given step,
// directly or through intermediate steps. Used to propagate a failure
// downstream without touching unrelated branches.
func (g *DependencyGraph) TransitiveDependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	queue := []string{stepID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependentsLocked(current) {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
