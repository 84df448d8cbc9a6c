package evidence

import (
	"context"
	"errors"
	"os"
	"sync"
)

// MockRecorder is a Recorder for tests. It can be scripted to fail a
// number of session starts, and tracks opens and finalizations so tests
// can assert the release-before-return contract.
type MockRecorder struct {
	name string

	mu        sync.Mutex
	failNext  int
	opens     int
	finalized int
	recording bool
}

// NewMockRecorder creates a mock recorder with the given backend name.
func NewMockRecorder(name string) *MockRecorder {
	return &MockRecorder{name: name}
}

// FailNextStarts scripts the next n session starts to fail.
func (m *MockRecorder) FailNextStarts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Record simulates one session: it writes the session file, reports
// started, and blocks until ctx is done before finalizing.
func (m *MockRecorder) Record(ctx context.Context, path string, started func()) error {
	m.mu.Lock()
	if m.failNext > 0 {
		m.failNext--
		m.mu.Unlock()
		return errors.New("mock: device busy")
	}
	m.opens++
	m.recording = true
	m.mu.Unlock()

	if err := os.WriteFile(path, []byte("mock"), 0o600); err != nil {
		return err
	}
	started()

	<-ctx.Done()

	m.mu.Lock()
	m.recording = false
	m.finalized++
	m.mu.Unlock()
	return nil
}

// Ext returns ".mock".
func (m *MockRecorder) Ext() string { return ".mock" }

// Name returns the backend name.
func (m *MockRecorder) Name() string { return m.name }

// Opens returns how many sessions started successfully.
func (m *MockRecorder) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Finalized returns how many sessions were finalized.
func (m *MockRecorder) Finalized() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// Recording reports whether a session is currently open.
func (m *MockRecorder) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

var _ Recorder = (*MockRecorder)(nil)

// MockSampleSource generates silent PCM16 frames for MicRecorder tests.
type MockSampleSource struct {
	frameSize int
	closed    bool
	mu        sync.Mutex
}

// NewMockSampleSource creates a silence source with the given frame size.
func NewMockSampleSource(frameSize int) *MockSampleSource {
	return &MockSampleSource{frameSize: frameSize}
}

// Read returns one silent frame, or the context error.
func (m *MockSampleSource) Read(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return make([]int16, m.frameSize), nil
}

// Close marks the source closed.
func (m *MockSampleSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSampleSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ SampleSource = (*MockSampleSource)(nil)
