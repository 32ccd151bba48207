package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"

	"github.com/coderena/validator/pkg/llmproxy"
)

// modelRegistryFile is the on-disk shape of a hot-reloadable model
// allow-list, SPEC_FULL.md §4.6: a YAML document of llm_name -> entry.
type modelRegistryFile map[string]llmproxy.ModelEntry

// RegistryWatcher watches an operator-supplied YAML file and replaces a
// llmproxy.Server's Registry in place whenever it changes, without
// restarting the proxy. Grounded on the teacher's only other fsnotify
// consumer, pkg/tui/styles/theme_watcher.go — debounce, directory-level
// watch for atomic-save editors, and a stop channel.
type RegistryWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	stopChan chan struct{}
	onChange func(map[string]llmproxy.ModelEntry)
}

func NewRegistryWatcher(onChange func(map[string]llmproxy.ModelEntry)) *RegistryWatcher {
	return &RegistryWatcher{onChange: onChange}
}

// Watch begins watching path. An initial load happens synchronously so the
// caller has a populated registry before Watch returns.
func (w *RegistryWatcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()

	if err := w.loadAndNotify(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.path = path
	w.stopChan = make(chan struct{})
	go w.watchLoop()

	return nil
}

func (w *RegistryWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *RegistryWatcher) stopLocked() {
	if w.stopChan != nil {
		close(w.stopChan)
		w.stopChan = nil
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
	w.path = ""
}

func (w *RegistryWatcher) loadAndNotify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file modelRegistryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	w.onChange(file)
	return nil
}

func (w *RegistryWatcher) watchLoop() {
	var debounce *time.Timer
	const debounceDuration = 500 * time.Millisecond

	w.mu.Lock()
	watcher, path, stopChan := w.watcher, w.path, w.stopChan
	w.mu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-stopChan:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDuration, func() {
				w.mu.Lock()
				current := w.path
				w.mu.Unlock()
				if err := w.loadAndNotify(current); err != nil {
					slog.Warn("failed to reload model registry", "path", current, "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("model registry watcher error", "error", err)
		}
	}
}
