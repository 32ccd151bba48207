package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// trackerFile is the on-disk shape of trackers_<COMPETITION>.json, mirroring
// the original's `{trackers: [TrackingInfo]}` pickle shape (spec.md §6).
type trackerFile struct {
	Trackers []TrackingInfo `json:"trackers"`
}

// Store persists TrackingInfo and the ValidationRecord cache for one
// competition, atomically (write-then-rename), grounded on the teacher's
// userconfig.Config save pattern.
type Store struct {
	mu   sync.Mutex
	dir  string
	comp int

	trackers map[string]*TrackingInfo // keyed by hotkey
	cache    map[string]ValidationRecord
}

// NewStore opens (or creates) the competition store at dir.
func NewStore(dir string, comp int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tracking store dir: %w", err)
	}
	s := &Store{dir: dir, comp: comp, trackers: make(map[string]*TrackingInfo)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) trackersPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("trackers_%d.json", s.comp))
}

func (s *Store) cachePath() string {
	return filepath.Join(s.dir, fmt.Sprintf("models_%d.json", s.comp))
}

func (s *Store) load() error {
	if data, err := os.ReadFile(s.trackersPath()); err == nil {
		var tf trackerFile
		if err := json.Unmarshal(data, &tf); err != nil {
			// Corruption: logged-equivalent, treated as absent per spec.md §7.
			s.trackers = make(map[string]*TrackingInfo)
		} else {
			for i := range tf.Trackers {
				t := tf.Trackers[i]
				s.trackers[t.Hotkey] = &t
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading tracker store: %w", err)
	}

	s.cache = make(map[string]ValidationRecord)
	if data, err := os.ReadFile(s.cachePath()); err == nil {
		var records []ValidationRecord
		if err := json.Unmarshal(data, &records); err == nil {
			for _, r := range records {
				s.cache[r.LogicHash] = r
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading validation cache: %w", err)
	}

	return nil
}

// Get returns the tracker for hotkey, if any.
func (s *Store) Get(hotkey string) (*TrackingInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[hotkey]
	return t, ok
}

// Upsert creates or replaces the tracker for t.Hotkey. Invariant: at most
// one TrackingInfo per hotkey (spec.md §3).
func (s *Store) Upsert(t TrackingInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[t.Hotkey] = &t
	return s.flushTrackers()
}

// All returns every tracker, in no particular order; callers needing
// metagraph-UID order should sort by UID themselves.
func (s *Store) All() []TrackingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackingInfo, 0, len(s.trackers))
	for _, t := range s.trackers {
		out = append(out, *t)
	}
	return out
}

func (s *Store) flushTrackers() error {
	list := make([]TrackingInfo, 0, len(s.trackers))
	for _, t := range s.trackers {
		list = append(list, *t)
	}
	data, err := json.MarshalIndent(trackerFile{Trackers: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trackers: %w", err)
	}
	if err := atomic.WriteFile(s.trackersPath(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing tracker store: %w", err)
	}
	return nil
}

// SaveValidationCache persists the given validation cache.
func (s *Store) SaveValidationCache(records map[string]ValidationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]ValidationRecord, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling validation cache: %w", err)
	}
	if err := atomic.WriteFile(s.cachePath(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing validation cache: %w", err)
	}
	s.cache = records
	return nil
}

// ValidationCache returns the persisted validation cache, for seeding a
// Validator at startup.
func (s *Store) ValidationCache() map[string]ValidationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ValidationRecord, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}
