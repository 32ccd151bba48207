package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// Store persists a competition's Task list to disk using atomic
// write-then-rename (no torn writes visible to a concurrently starting
// validator process), JSON-encoded per SPEC_FULL.md §4.2.
type Store struct {
	mu   sync.Mutex
	dir  string
	comp int

	tasks []Task
}

// NewStore returns a Store rooted at dir for CompetitionID comp. The
// directory is created if missing.
func NewStore(dir string, comp int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating task store dir: %w", err)
	}
	s := &Store{dir: dir, comp: comp}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, fmt.Sprintf("tasks_%d.json", s.comp))
}

func (s *Store) archivePath(comp int) string {
	return filepath.Join(s.dir, fmt.Sprintf("tasks_%d.json.archived", comp))
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			s.tasks = nil
			return nil
		}
		return fmt.Errorf("reading task store: %w", err)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("parsing task store: %w", err)
	}
	s.tasks = tasks
	return nil
}

// Tasks returns a copy of the current task list.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Add appends tasks and persists the store.
func (s *Store) Add(tasks ...Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, tasks...)
	return s.save()
}

// Rotate archives this competition's current file under its old
// CompetitionID (so the audit trail isn't lost) and switches the Store to
// newID with an empty task list. Rotate is a no-op on the in-memory task
// list of the caller only via the returned Store; the caller should discard
// its old Store reference and use the returned one.
func (s *Store) Rotate(newID int) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path()); err == nil {
		if err := os.Rename(s.path(), s.archivePath(s.comp)); err != nil {
			return nil, fmt.Errorf("archiving competition %d task store: %w", s.comp, err)
		}
	}

	next := &Store{dir: s.dir, comp: newID}
	if err := next.load(); err != nil {
		return nil, err
	}
	return next, nil
}

// Trim keeps only the most recent numKeep tasks, dropping the rest, and
// persists the result. Pass numKeep <= 0 to disable trimming.
func (s *Store) Trim(numKeep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if numKeep <= 0 || len(s.tasks) <= numKeep {
		return nil
	}
	s.tasks = s.tasks[len(s.tasks)-numKeep:]
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling task store: %w", err)
	}
	if err := atomic.WriteFile(s.path(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing task store: %w", err)
	}
	return nil
}
