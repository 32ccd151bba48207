package task

// ReplaceAll swaps the in-memory task list for replacement and persists
// it, atomically, as a single rotation step. Used by the pipeline's
// (num_keep, num_wanted) batch rotation (SPEC_FULL.md §4.2), which needs
// to drop a prefix and append fresh generations as one saved unit rather
// than two separate Store mutations.
func (s *Store) ReplaceAll(tasks []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]Task(nil), tasks...)
	return s.save()
}
