package dispatch

import (
	"context"
	"sync"
)

// MockSender records sends and replays scripted status streams.
type MockSender struct {
	mu      sync.Mutex
	sent    []string // phone numbers in submit order
	scripts map[string][]Status
	err     error
}

var _ Sender = (*MockSender)(nil)

func NewMockSender() *MockSender {
	return &MockSender{scripts: make(map[string][]Status)}
}

// Script sets the status stream replayed for a phone number. Numbers
// without a script get {sent, delivered}.
func (m *MockSender) Script(phoneNumber string, statuses ...Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[phoneNumber] = statuses
}

// FailSubmit makes every Send return err.
func (m *MockSender) FailSubmit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns the submitted phone numbers.
func (m *MockSender) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockSender) Send(ctx context.Context, phoneNumber, body string) (<-chan Status, error) {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	m.sent = append(m.sent, phoneNumber)
	script, ok := m.scripts[phoneNumber]
	m.mu.Unlock()

	if !ok {
		script = []Status{StatusSent, StatusDelivered}
	}

	out := make(chan Status, len(script))
	for _, s := range script {
		out <- s
	}
	close(out)
	return out, nil
}
