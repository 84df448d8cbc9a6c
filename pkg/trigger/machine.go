package trigger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lumasafe/guardian/internal/log"
)

// State is the trigger lifecycle state.
type State int

const (
	StateIdle State = iota
	StateTriggered
	StateConfirming
	StateActive
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggered:
		return "triggered"
	case StateConfirming:
		return "confirming"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Machine owns the lifecycle between the detector, the confirmation
// surface, and the responder. All transitions are serialized on one
// mutex; the responder's Stop is the only call made outside it, since
// it blocks for the shutdown grace period.
type Machine struct {
	wake      WakeLock
	surface   AlertSurface
	responder Responder
	logger    *slog.Logger

	confirmTimeout time.Duration
	trackThreshold float64

	mu         sync.Mutex
	state      State
	confirmGen int
	timer      *time.Timer
}

// NewMachine creates a trigger state machine in the Idle state.
func NewMachine(wake WakeLock, surface AlertSurface, responder Responder, confirmTimeout time.Duration, trackThreshold float64) *Machine {
	return &Machine{
		wake:           wake,
		surface:        surface,
		responder:      responder,
		logger:         log.Component("trigger"),
		confirmTimeout: confirmTimeout,
		trackThreshold: trackThreshold,
		state:          StateIdle,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTrigger handles a completed press pattern. From Idle it acquires the
// wake assertion and surfaces the confirmation prompt; while Confirming
// it restarts the confirmation window; while Active or Stopping the
// system is already responding and the signal is ignored.
func (m *Machine) OnTrigger() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateIdle:
		m.state = StateTriggered
		// Hold the wake assertion slightly past the confirmation window
		// so the timeout path runs before the device can sleep again.
		m.wake.Acquire(m.confirmTimeout + time.Second)
		m.state = StateConfirming
		m.armConfirmTimer()
		m.surface.ShowConfirm(
			"Emergency SOS",
			"Drag to confirm and start the emergency response",
			m.confirmTimeout,
			m.trackThreshold,
		)
		m.logger.Info("trigger signal, awaiting confirmation", "timeout", m.confirmTimeout)

	case StateConfirming:
		m.armConfirmTimer()
		m.logger.Debug("trigger signal while confirming, window restarted")

	default:
		m.logger.Debug("trigger signal ignored", "state", m.state.String())
	}
}

// armConfirmTimer (re)starts the confirmation timeout.
// Caller must hold m.mu.
func (m *Machine) armConfirmTimer() {
	m.confirmGen++
	gen := m.confirmGen
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.confirmTimeout, func() {
		m.onConfirmTimeout(gen)
	})
}

func (m *Machine) onConfirmTimeout(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.confirmGen || m.state != StateConfirming {
		return
	}
	m.state = StateIdle
	m.wake.Release()
	m.logger.Info("confirmation timed out")
}

// Confirm handles the user's drag gesture. A drag short of the track
// threshold leaves the machine Confirming; crossing it starts the
// response.
func (m *Machine) Confirm(track float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConfirming {
		m.logger.Debug("confirm ignored", "state", m.state.String())
		return
	}
	if track < m.trackThreshold {
		m.logger.Debug("drag below threshold", "track", track)
		return
	}

	m.confirmGen++
	if m.timer != nil {
		m.timer.Stop()
	}
	m.wake.Release()
	m.state = StateActive

	if err := m.responder.Start(); err != nil {
		// The responder recovers per-channel failures itself; an error
		// here means nothing could start at all.
		m.logger.Error("failed to start response", "error", err)
		m.state = StateIdle
		m.surface.ShowUrgent("Emergency SOS", "Could not start the emergency response")
		return
	}

	m.surface.ShowOngoing(
		"Emergency response active",
		"Location, messaging and recording are running",
		[]string{"stop"},
	)
	m.logger.Info("response confirmed and started")
}

// Cancel dismisses the confirmation prompt without starting anything.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConfirming {
		return
	}
	m.confirmGen++
	if m.timer != nil {
		m.timer.Stop()
	}
	m.state = StateIdle
	m.wake.Release()
	m.logger.Info("confirmation cancelled")
}

// Stop ends an active response, or dismisses a pending confirmation.
// With nothing active it is a no-op, never an error.
func (m *Machine) Stop() {
	m.mu.Lock()
	switch m.state {
	case StateConfirming:
		m.mu.Unlock()
		m.Cancel()
		return
	case StateActive:
		m.state = StateStopping
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		return
	}

	// Blocks up to the responder's grace period; held locks would stall
	// every event source feeding the machine.
	m.responder.Stop()

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()

	m.surface.ClearOngoing()
	m.logger.Info("response stopped")
}
