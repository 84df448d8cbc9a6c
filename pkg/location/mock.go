package location

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoFix is returned when no position is available.
var ErrNoFix = errors.New("location: no fix available")

// MockProvider serves scripted fixes for tests and bench rigs.
type MockProvider struct {
	mu     sync.Mutex
	fix    *Fix
	curErr error
}

var _ Provider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// SetFix installs the fix returned by Current and emitted by Watch.
func (m *MockProvider) SetFix(f Fix) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fix = &f
	m.curErr = nil
}

// FailCurrent makes Current return err until SetFix is called.
func (m *MockProvider) FailCurrent(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fix = nil
	m.curErr = err
}

func (m *MockProvider) Current(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.curErr != nil {
		return Fix{}, m.curErr
	}
	if m.fix == nil {
		return Fix{}, ErrNoFix
	}
	return *m.fix, nil
}

func (m *MockProvider) Watch(ctx context.Context, interval time.Duration) (<-chan Fix, error) {
	out := make(chan Fix)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fix, err := m.Current(ctx)
				if err != nil {
					continue
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// MockGeocoder returns a fixed address or error.
type MockGeocoder struct {
	Address string
	Err     error
}

var _ Geocoder = (*MockGeocoder)(nil)

func (m *MockGeocoder) Reverse(ctx context.Context, fix Fix) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Address, m.Err
}
