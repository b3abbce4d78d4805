package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/maestroflow/maestro/pkg/models"
)

func steps(defs ...[2]interface{}) []*models.Step {
	var out []*models.Step
	for i, d := range defs {
		out = append(out, &models.Step{
			ID:        d[0].(string),
			AgentID:   "agent",
			Status:    models.StepPending,
			DependsOn: d[1].([]string),
			Order:     i,
		})
	}
	return out
}

func TestBuild_UnknownDependency(t *testing.T) {
	g := New()
	err := g.Build(steps(
		[2]interface{}{"a", []string(nil)},
		[2]interface{}{"b", []string{"missing"}},
	))
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuild_CycleDetected(t *testing.T) {
	g := New()
	err := g.Build(steps(
		[2]interface{}{"a", []string{"c"}},
		[2]interface{}{"b", []string{"a"}},
		[2]interface{}{"c", []string{"b"}},
	))
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuild_SelfCycle(t *testing.T) {
	g := New()
	err := g.Build(steps([2]interface{}{"a", []string{"a"}}))
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestStages_Layering(t *testing.T) {
	// a, b independent; c depends on both; d depends on c.
	g := New()
	if err := g.Build(steps(
		[2]interface{}{"a", []string(nil)},
		[2]interface{}{"b", []string(nil)},
		[2]interface{}{"c", []string{"a", "b"}},
		[2]interface{}{"d", []string{"c"}},
	)); err != nil {
		t.Fatalf("build: %v", err)
	}

	stages, err := g.Stages()
	if err != nil {
		t.Fatalf("stages: %v", err)
	}

	want := [][]string{{"a", "b"}, {"c"}, {"d"}}
	if !reflect.DeepEqual(stages, want) {
		t.Errorf("Stages() = %v, want %v", stages, want)
	}
}

func TestStages_RespectsDependencyOrder(t *testing.T) {
	g := New()
	if err := g.Build(steps(
		[2]interface{}{"z", []string{"m"}},
		[2]interface{}{"m", []string(nil)},
		[2]interface{}{"q", []string{"z"}},
	)); err != nil {
		t.Fatalf("build: %v", err)
	}

	stages, err := g.Stages()
	if err != nil {
		t.Fatalf("stages: %v", err)
	}

	// No step may appear in an earlier stage than any of its dependencies.
	stageOf := make(map[string]int)
	for i, stage := range stages {
		for _, id := range stage {
			stageOf[id] = i
		}
	}
	for _, id := range []string{"z", "m", "q"} {
		for _, dep := range g.Dependencies(id) {
			if stageOf[dep] >= stageOf[id] {
				t.Errorf("step %s (stage %d) not after dependency %s (stage %d)",
					id, stageOf[id], dep, stageOf[dep])
			}
		}
	}
}

func TestReady_DefinitionOrder(t *testing.T) {
	g := New()
	if err := g.Build(steps(
		[2]interface{}{"third", []string(nil)},
		[2]interface{}{"first", []string(nil)},
		[2]interface{}{"second", []string(nil)},
	)); err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{"third", "first", "second"}
	if got := g.Ready(); !reflect.DeepEqual(got, want) {
		t.Errorf("Ready() = %v, want definition order %v", got, want)
	}
}

func TestReady_UnblocksOnCompletion(t *testing.T) {
	g := New()
	if err := g.Build(steps(
		[2]interface{}{"a", []string(nil)},
		[2]interface{}{"b", []string{"a"}},
	)); err != nil {
		t.Fatalf("build: %v", err)
	}

	if got := g.Ready(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("Ready() = %v, want [a]", got)
	}

	g.MarkCompleted("a")
	if got := g.Ready(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Ready() after completing a = %v, want [b]", got)
	}
}

func TestReady_FailedStepsNeverReady(t *testing.T) {
	g := New()
	if err := g.Build(steps(
		[2]interface{}{"a", []string(nil)},
		[2]interface{}{"b", []string{"a"}},
		[2]interface{}{"c", []string(nil)},
	)); err != nil {
		t.Fatalf("build: %v", err)
	}

	g.MarkFailed("a")
	g.MarkFailed("b") // skipped by the engine

	if got := g.Ready(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Ready() = %v, want unrelated branch [c]", got)
	}
	if g.Settled() {
		t.Error("Settled() = true with c still pending")
	}

	g.MarkCompleted("c")
	if !g.Settled() {
		t.Error("Settled() = false after all steps terminal")
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := New()
	if err := g.Build(steps(
		[2]interface{}{"a", []string(nil)},
		[2]interface{}{"b", []string{"a"}},
		[2]interface{}{"c", []string{"b"}},
		[2]interface{}{"d", []string(nil)},
	)); err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{"b", "c"}
	if got := g.TransitiveDependents("a"); !reflect.DeepEqual(got, want) {
		t.Errorf("TransitiveDependents(a) = %v, want %v", got, want)
	}
	if got := g.TransitiveDependents("d"); len(got) != 0 {
		t.Errorf("TransitiveDependents(d) = %v, want empty", got)
	}
}
