// Package store provides the small durable stores guardiand needs:
// the press counter, the emergency contact list, and the activity log.
// All file-backed stores write atomically (temp file + rename) so a
// crash mid-write never leaves a torn record behind.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CounterState is the persisted press-counter record.
type CounterState struct {
	// LastPressMillis is the Unix-millisecond timestamp of the last press.
	LastPressMillis int64 `json:"last_press_ms"`
	// Count is the number of qualifying presses seen so far.
	Count uint32 `json:"count"`
}

// CounterStore persists the press counter across process restarts.
// Swap runs the update function inside a single-writer critical section,
// so concurrent callers always see an atomic read-modify-write.
type CounterStore interface {
	// Load returns the current state. A missing or unreadable record
	// loads as the zero state; an emergency trigger must never be lost
	// to a corrupt counter file.
	Load() (CounterState, error)

	// Swap atomically applies fn to the current state, persists the
	// result, and returns it.
	Swap(fn func(CounterState) CounterState) (CounterState, error)
}

// FileCounterStore is a CounterStore backed by a small JSON file.
type FileCounterStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCounterStore creates a counter store at the given path.
func NewFileCounterStore(path string) (*FileCounterStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileCounterStore{path: path}, nil
}

// Load returns the persisted state, or the zero state if the file is
// missing or unreadable.
func (s *FileCounterStore) Load() (CounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(), nil
}

// read loads the state with the fail-safe corruption policy.
// Caller must hold s.mu.
func (s *FileCounterStore) read() CounterState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return CounterState{}
	}
	var st CounterState
	if err := json.Unmarshal(data, &st); err != nil {
		return CounterState{}
	}
	return st
}

// Swap atomically applies fn and persists the result.
func (s *FileCounterStore) Swap(fn func(CounterState) CounterState) (CounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.read())

	data, err := json.Marshal(next)
	if err != nil {
		return CounterState{}, fmt.Errorf("failed to marshal counter: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return CounterState{}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return CounterState{}, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return next, nil
}

// MemCounterStore is an in-memory CounterStore for tests.
type MemCounterStore struct {
	mu    sync.Mutex
	state CounterState

	// SwapErr, when set, is returned by Swap after applying fn, the way
	// a file-backed store fails when the new state cannot be persisted.
	SwapErr error
}

// NewMemCounterStore creates an empty in-memory counter store.
func NewMemCounterStore() *MemCounterStore {
	return &MemCounterStore{}
}

// Load returns the current state.
func (s *MemCounterStore) Load() (CounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// Swap atomically applies fn to the current state.
func (s *MemCounterStore) Swap(fn func(CounterState) CounterState) (CounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state, s.SwapErr
}

var (
	_ CounterStore = (*FileCounterStore)(nil)
	_ CounterStore = (*MemCounterStore)(nil)
)
