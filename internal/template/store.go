// Package template manages named workflow templates: a file-backed registry
// where each template lives as one YAML file in a templates directory.
package template

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/maestroflow/maestro/pkg/models"
)

// ErrNotFound is returned when a template id or name resolves to nothing.
var ErrNotFound = errors.New("template not found")

// Store is a registry of workflow templates backed by a directory of YAML
// files. Safe for concurrent use.
type Store struct {
	dir string

	mu        sync.RWMutex
	templates map[string]*models.WorkflowTemplate // keyed by id
	byName    map[string]string                   // name -> id
}

// NewStore creates a Store rooted at dir and loads any templates already
// present. The directory is created if it does not exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	s := &Store{
		dir:       dir,
		templates: make(map[string]*models.WorkflowTemplate),
		byName:    make(map[string]string),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadAll reads every .yaml/.yml file under the store directory. A file that
// fails to parse is skipped with a warning rather than failing the whole
// load, so one corrupt template cannot take down the registry.
func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read templates dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		tmpl, err := ParseFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			log.Printf("[template] WARNING: skipping %s: %v", entry.Name(), err)
			continue
		}
		s.templates[tmpl.ID] = tmpl
		s.byName[tmpl.Name] = tmpl.ID
	}
	return nil
}

// ParseFile reads and validates a single workflow template YAML file. Used
// both by the store and for ad-hoc runs straight from a file.
func ParseFile(path string) (*models.WorkflowTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates template YAML. A template without an id gets
// one assigned; persisted templates keep theirs across loads.
func Parse(data []byte) (*models.WorkflowTemplate, error) {
	var tmpl models.WorkflowTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now()
	}
	return &tmpl, nil
}

// Save validates the template, writes it to disk, and registers it. A
// template with the same name replaces the previous one.
func (s *Store) Save(tmpl *models.WorkflowTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now()
	}

	data, err := yaml.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	path := filepath.Join(s.dir, fileName(tmpl.Name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write template: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byName[tmpl.Name]; ok && prev != tmpl.ID {
		delete(s.templates, prev)
	}
	s.templates[tmpl.ID] = tmpl
	s.byName[tmpl.Name] = tmpl.ID
	return nil
}

// Get returns the template with the given id.
func (s *Store) Get(id string) (*models.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tmpl, nil
}

// Resolve looks a template up by id first, then by name.
func (s *Store) Resolve(idOrName string) (*models.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tmpl, ok := s.templates[idOrName]; ok {
		return tmpl, nil
	}
	if id, ok := s.byName[idOrName]; ok {
		return s.templates[id], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
}

// List returns all templates sorted by name.
func (s *Store) List() []*models.WorkflowTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.WorkflowTemplate, 0, len(s.templates))
	for _, tmpl := range s.templates {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes a template by id or name, both from the registry and from
// disk.
func (s *Store) Delete(idOrName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := idOrName
	if _, ok := s.templates[id]; !ok {
		mapped, ok := s.byName[idOrName]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, idOrName)
		}
		id = mapped
	}

	tmpl := s.templates[id]
	delete(s.templates, id)
	delete(s.byName, tmpl.Name)

	path := filepath.Join(s.dir, fileName(tmpl.Name))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove template file: %w", err)
	}
	return nil
}

// fileName derives a stable on-disk name from a template name.
func fileName(name string) string {
	slug := strings.ToLower(name)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "template"
	}
	return slug + ".yaml"
}
