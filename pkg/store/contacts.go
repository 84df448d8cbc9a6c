package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Contact is an emergency contact the user has registered.
type Contact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// contactsFile is the JSON structure for the contacts file.
type contactsFile struct {
	Version   int       `json:"version"`
	UpdatedAt string    `json:"updated_at"`
	Contacts  []Contact `json:"contacts"`
}

const contactsVersion = 1

// ContactStore holds the emergency contact list, exposed as a reactive
// list: every mutation fans the full list out to subscribers.
type ContactStore struct {
	path string

	mu       sync.RWMutex
	contacts map[string]Contact
	subs     map[int]chan []Contact
	nextSub  int
}

// NewContactStore creates a contact store at the given path.
// If the file doesn't exist, it will be created on first save.
func NewContactStore(path string) (*ContactStore, error) {
	s := &ContactStore{
		path:     path,
		contacts: make(map[string]Contact),
		subs:     make(map[int]chan []Contact),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("failed to load contacts: %w", err)
		}
	}

	return s, nil
}

func (s *ContactStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored contactsFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.contacts = make(map[string]Contact, len(stored.Contacts))
	for _, c := range stored.Contacts {
		s.contacts[c.ID] = c
	}
	return nil
}

// save writes the store to disk. Caller must hold s.mu.
func (s *ContactStore) save() error {
	stored := contactsFile{
		Version:   contactsVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Contacts:  s.sorted(),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
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

// sorted returns the contacts ordered by name. Caller must hold s.mu.
func (s *ContactStore) sorted() []Contact {
	list := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// notify fans the current list out to subscribers. Caller must hold s.mu.
// A slow subscriber's stale buffered list is replaced with the current
// one, never the other way around; notify is the only sender on these
// channels so the drain-then-send cannot race.
func (s *ContactStore) notify() {
	list := s.sorted()
	for _, ch := range s.subs {
		select {
		case ch <- list:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- list:
		default:
		}
	}
}

// List returns all contacts ordered by name.
func (s *ContactStore) List() []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted()
}

// Get retrieves a contact by ID.
func (s *ContactStore) Get(id string) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("contact not found: %s", id)
	}
	return c, nil
}

// Add creates a new contact and returns it.
func (s *ContactStore) Add(name, phoneNumber string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := Contact{
		ID:          uuid.New().String(),
		Name:        name,
		PhoneNumber: phoneNumber,
	}
	s.contacts[c.ID] = c

	if err := s.save(); err != nil {
		delete(s.contacts, c.ID)
		return Contact{}, err
	}
	s.notify()
	return c, nil
}

// Update replaces an existing contact.
func (s *ContactStore) Update(c Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[c.ID]; !ok {
		return fmt.Errorf("contact not found: %s", c.ID)
	}
	s.contacts[c.ID] = c

	if err := s.save(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Remove deletes a contact by ID.
func (s *ContactStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[id]; !ok {
		return fmt.Errorf("contact not found: %s", id)
	}
	delete(s.contacts, id)

	if err := s.save(); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Subscribe returns a channel that receives the full contact list on
// mutation, plus a cancel function that must be called when done. A
// subscriber that falls behind misses intermediate lists but always
// receives the latest.
func (s *ContactStore) Subscribe() (<-chan []Contact, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan []Contact, 1)
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

// Count returns the number of contacts.
func (s *ContactStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}
