package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActivityEntry is one line of the emergency audit trail.
type ActivityEntry struct {
	Timestamp   time.Time `json:"ts"`
	Description string    `json:"description"`
}

// ActivityLog is the append-only audit trail the orchestrator writes on
// every significant transition. Reads come back newest-first.
type ActivityLog interface {
	Append(description string) error
	Recent(n int) ([]ActivityEntry, error)
}

// FileActivityLog stores entries as JSON lines, one per append, so a
// partial write can corrupt at most the final line.
type FileActivityLog struct {
	path string
	mu   sync.Mutex
}

// NewFileActivityLog creates an activity log at the given path.
func NewFileActivityLog(path string) (*FileActivityLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileActivityLog{path: path}, nil
}

// Append writes one entry with the current timestamp.
func (l *FileActivityLog) Append(description string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := ActivityEntry{Timestamp: time.Now(), Description: description}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, most recent first.
// Pass n <= 0 for all entries.
func (l *FileActivityLog) Recent(n int) ([]ActivityEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	var entries []ActivityEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry ActivityEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// Torn final line after a crash; skip it
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	// Reverse to newest-first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// MemActivityLog is an in-memory ActivityLog for tests.
type MemActivityLog struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

// NewMemActivityLog creates an empty in-memory activity log.
func NewMemActivityLog() *MemActivityLog {
	return &MemActivityLog{}
}

// Append records one entry.
func (l *MemActivityLog) Append(description string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ActivityEntry{Timestamp: time.Now(), Description: description})
	return nil
}

// Recent returns up to n entries, most recent first.
func (l *MemActivityLog) Recent(n int) ([]ActivityEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ActivityEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Descriptions returns every recorded description, oldest first.
// Test helper.
func (l *MemActivityLog) Descriptions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Description
	}
	return out
}

var (
	_ ActivityLog = (*FileActivityLog)(nil)
	_ ActivityLog = (*MemActivityLog)(nil)
)
