package trigger

import "time"

// WakeLock is a short-lived wake assertion, held while the confirmation
// surface must be able to display on a locked or sleeping device.
type WakeLock interface {
	// Acquire asserts the wake lock for at most d.
	Acquire(d time.Duration)
	// Release drops the assertion. Safe to call when not held.
	Release()
}

// NopWakeLock is a WakeLock for platforms without a wake API.
type NopWakeLock struct{}

func (NopWakeLock) Acquire(time.Duration) {}
func (NopWakeLock) Release()              {}

// AlertSurface is the system notification surface, implemented by the
// shell bridge. The daemon never renders UI itself.
type AlertSurface interface {
	// ShowConfirm surfaces the drag-to-confirm affordance together with
	// an urgent, bypass-quiet-hours alert.
	ShowConfirm(title, body string, timeout time.Duration, trackThreshold float64)

	// ShowUrgent surfaces an urgent alert with no affordance.
	ShowUrgent(title, body string)

	// ShowOngoing surfaces or updates the ongoing-response status card.
	ShowOngoing(title, body string, actions []string)

	// ClearOngoing takes the status card down.
	ClearOngoing()
}

// Responder starts and stops the emergency response. Stop must be safe
// to call regardless of which response tasks actually started.
type Responder interface {
	Start() error
	Stop()
}
