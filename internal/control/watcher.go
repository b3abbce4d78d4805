// Package control handles out-of-band execution control via the .maestro
// directory. A running orchestrator watches the signals directory; other
// processes (the CLI, scripts) request cancellation by dropping a file there.
package control

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// cancelPrefix names cancel signal files: cancel-<execution-id>.
const cancelPrefix = "cancel-"

// CancelFunc is called with the execution id named by a cancel signal file.
type CancelFunc func(executionID string)

// Watcher monitors the signals directory and forwards cancel requests to the
// engine. Signal files are consumed (removed) once acted on, so a stale file
// cannot cancel a later execution with a reused directory.
type Watcher struct {
	signalsDir string
	cancel     CancelFunc

	mu   sync.Mutex
	seen map[string]bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates the signals directory under baseDir and starts watching
// it. If the fsnotify watcher cannot be created the Watcher still works in
// polling mode via Sweep.
func NewWatcher(baseDir string, cancel CancelFunc) (*Watcher, error) {
	signalsDir := filepath.Join(baseDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		signalsDir: signalsDir,
		cancel:     cancel,
		seen:       make(map[string]bool),
		done:       make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher; callers can poll with Sweep.
		log.Printf("[control] WARNING: fsnotify unavailable, falling back to polling: %v", err)
		return w, nil
	}
	if err := fsw.Add(signalsDir); err != nil {
		fsw.Close()
		log.Printf("[control] WARNING: cannot watch %s, falling back to polling: %v", signalsDir, err)
		return w, nil
	}
	w.watcher = fsw

	go w.watchSignals()

	return w, nil
}

// watchSignals forwards create/write events on cancel files.
func (w *Watcher) watchSignals() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			w.consume(filepath.Base(event.Name))
		case <-w.watcher.Errors:
			// Ignore errors, keep watching.
		}
	}
}

// Sweep checks the signals directory once for cancel files the watcher may
// have missed. Safe to call on a timer alongside the fsnotify path.
func (w *Watcher) Sweep() {
	entries, err := os.ReadDir(w.signalsDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.consume(entry.Name())
		}
	}
}

// consume acts on one signal file and removes it. Each execution id is acted
// on at most once per Watcher.
func (w *Watcher) consume(name string) {
	if !strings.HasPrefix(name, cancelPrefix) {
		return
	}
	executionID := strings.TrimPrefix(name, cancelPrefix)
	if executionID == "" {
		return
	}

	w.mu.Lock()
	already := w.seen[executionID]
	w.seen[executionID] = true
	w.mu.Unlock()

	os.Remove(filepath.Join(w.signalsDir, name))

	if already {
		return
	}
	log.Printf("[control] cancel signal received for %s", executionID)
	w.cancel(executionID)
}

// Close shuts the watcher down.
func (w *Watcher) Close() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
}

// RequestCancel drops a cancel signal file for the given execution into
// baseDir's signals directory. Used by processes other than the running
// orchestrator.
func RequestCancel(baseDir, executionID string) error {
	signalsDir := filepath.Join(baseDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(signalsDir, cancelPrefix+executionID)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}
