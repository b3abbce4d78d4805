package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maestroflow/maestro/pkg/models"
)

const researchTemplate = `
name: research-and-write
description: research a topic then draft a summary
steps:
  - id: research
    agent: researcher
    task: gather sources on the topic
  - id: draft
    agent: writer
    task: write a summary from the research
    depends_on: [research]
`

func TestParse(t *testing.T) {
	tmpl, err := Parse([]byte(researchTemplate))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tmpl.Name != "research-and-write" {
		t.Errorf("name = %q", tmpl.Name)
	}
	if tmpl.ID == "" {
		t.Error("no id assigned")
	}
	if len(tmpl.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(tmpl.Steps))
	}
	if tmpl.Steps[1].AgentID != "writer" {
		t.Errorf("agent = %q, yaml key 'agent' not mapped", tmpl.Steps[1].AgentID)
	}
	if len(tmpl.Steps[1].DependsOn) != 1 || tmpl.Steps[1].DependsOn[0] != "research" {
		t.Errorf("depends_on = %v", tmpl.Steps[1].DependsOn)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no steps", "name: empty\nsteps: []"},
		{"missing agent", "name: bad\nsteps:\n  - id: a\n    task: t"},
		{"unknown dep", "name: bad\nsteps:\n  - id: a\n    agent: x\n    task: t\n    depends_on: [ghost]"},
		{"self dep", "name: bad\nsteps:\n  - id: a\n    agent: x\n    task: t\n    depends_on: [a]"},
		{"duplicate id", "name: bad\nsteps:\n  - id: a\n    agent: x\n    task: t\n  - id: a\n    agent: y\n    task: t"},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestStore_SaveResolveDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	tmpl, _ := Parse([]byte(researchTemplate))
	if err := s.Save(tmpl); err != nil {
		t.Fatalf("Save: %v", err)
	}

	byID, err := s.Resolve(tmpl.ID)
	if err != nil {
		t.Fatalf("Resolve by id: %v", err)
	}
	byName, err := s.Resolve("research-and-write")
	if err != nil {
		t.Fatalf("Resolve by name: %v", err)
	}
	if byID.ID != byName.ID {
		t.Error("id and name resolve to different templates")
	}

	if err := s.Delete("research-and-write"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Resolve(tmpl.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "research-and-write.yaml")); !os.IsNotExist(err) {
		t.Error("template file not removed from disk")
	}
}

func TestStore_ReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tmpl, _ := Parse([]byte(researchTemplate))
	if err := s.Save(tmpl); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store over the same directory sees the template with the
	// same id.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Resolve("research-and-write")
	if err != nil {
		t.Fatalf("Resolve after reload: %v", err)
	}
	if got.ID != tmpl.ID {
		t.Errorf("id changed across reload: %q != %q", got.ID, tmpl.ID)
	}
}

func TestStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("{{{"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore with corrupt file: %v", err)
	}
	if got := len(s.List()); got != 0 {
		t.Errorf("templates = %d, want 0", got)
	}
}

func TestStore_ListSortedByName(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"zeta", "alpha", "mid"} {
		tmpl := &models.WorkflowTemplate{
			Name:  name,
			Steps: []models.StepDefinition{{ID: "a", AgentID: "x", TaskText: "t"}},
		}
		if err := s.Save(tmpl); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
	}

	list := s.List()
	want := []string{"alpha", "mid", "zeta"}
	for i, tmpl := range list {
		if tmpl.Name != want[i] {
			t.Errorf("list[%d] = %q, want %q", i, tmpl.Name, want[i])
		}
	}
}
