// Package settings holds the user's response settings as a reactive
// store: the orchestrator subscribes and receives a full immutable
// snapshot on every change, whether the change came through the API or
// from the shell editing the file directly.
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/lumasafe/guardian/internal/log"
)

// Snapshot is one immutable view of the response settings.
// Channels are reconciled against exactly one snapshot at a time;
// the value is copied on read so a reconciliation never observes a tear.
type Snapshot struct {
	ShareLocation     bool   `json:"share_location"`
	AutoCall          bool   `json:"auto_call"`
	RecordAudio       bool   `json:"audio_record"`
	RecordVideo       bool   `json:"video_record"`
	SendSMS           bool   `json:"sms"`
	SelectedContactID string `json:"selected_contact_id"`
}

// Store is a file-backed reactive settings store.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewStore creates a settings store at the given path.
// A missing file starts from the zero snapshot (everything off).
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: log.Component("settings"),
		subs:   make(map[int]chan Snapshot),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &s.snap); err != nil {
			return nil, fmt.Errorf("failed to parse settings: %w", err)
		}
	}

	return s, nil
}

// Get returns the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Set applies mutate to a copy of the current snapshot, persists the
// result, and fans it out to subscribers. A mutation that leaves the
// snapshot unchanged is not re-broadcast.
func (s *Store) Set(mutate func(*Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap
	mutate(&next)
	if next == s.snap {
		return nil
	}

	if err := s.persist(next); err != nil {
		return err
	}

	s.snap = next
	s.notify(next)
	return nil
}

// persist writes the snapshot to disk atomically. Caller must hold s.mu.
func (s *Store) persist(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// notify fans the snapshot out to subscribers. Caller must hold s.mu.
// Subscriber channels hold at most the latest snapshot: when a
// subscriber hasn't drained the previous one yet, it is replaced rather
// than the new one dropped, so the next receive always reflects the
// current state. Only notify sends on these channels, and it holds
// s.mu, so the drain-then-send below cannot race another sender.
func (s *Store) notify(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe returns a channel receiving a full snapshot on change, plus
// a cancel function that must be called when done. A slow subscriber
// may miss intermediate snapshots but always receives the latest.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
}

// Watch starts observing the settings file for external edits.
// The shell writes the same file; edits made there reach subscribers
// exactly like API mutations.
func (s *Store) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the file inode
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch settings dir: %w", err)
	}

	s.watcher = w
	s.stopCh = make(chan struct{})
	go s.watchLoop(w, s.stopCh)

	return nil
}

func (s *Store) watchLoop(w *fsnotify.Watcher, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("settings watcher error", "error", err)
		}
	}
}

// reload re-reads the file and fans out if the snapshot changed.
// Self-writes land here too; the unchanged check keeps them silent.
func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("failed to reload settings", "error", err)
		return
	}

	var next Snapshot
	if err := json.Unmarshal(data, &next); err != nil {
		s.logger.Warn("ignoring malformed settings file", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next == s.snap {
		return
	}
	s.snap = next
	s.notify(next)
}

// Close stops the file watcher. Subscribers are not closed; cancel them
// individually.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	close(s.stopCh)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
