// Package trigger recognizes the emergency press pattern and owns the
// lifecycle from "pattern detected" through user confirmation to an
// active response.
package trigger

import (
	"log/slog"
	"time"

	"github.com/lumasafe/guardian/internal/log"
	"github.com/lumasafe/guardian/pkg/store"
)

// EventKind identifies a lock-screen hardware event.
type EventKind string

const (
	// ScreenOff is one power-button press while the device is idle.
	ScreenOff EventKind = "screen_off"
	// ScreenOn is the screen waking; observational only.
	ScreenOn EventKind = "screen_on"
	// UserPresent is a normal unlock; it clears any partial sequence.
	UserPresent EventKind = "user_present"
)

// PressEvent is one raw hardware event. Transient; only the counter
// derived from it is persisted.
type PressEvent struct {
	Kind EventKind
	Time time.Time
}

// Detector recognizes "N presses within a window" from the raw event
// stream. The persisted counter is the only state, so a process restart
// mid-sequence does not lose presses.
type Detector struct {
	counter   store.CounterStore
	threshold uint32
	window    time.Duration
	logger    *slog.Logger
}

// NewDetector creates a detector over the given counter store.
func NewDetector(counter store.CounterStore, threshold int, window time.Duration) *Detector {
	return &Detector{
		counter:   counter,
		threshold: uint32(threshold),
		window:    window,
		logger:    log.Component("detector"),
	}
}

// OnEvent consumes one press event and reports whether the trigger
// pattern completed. The read-modify-write on the counter runs inside
// the store's critical section, so concurrent event sources cannot
// double-fire: the count resets to zero in the same swap that crosses
// the threshold.
//
// When the counter cannot be persisted the detection result still
// stands; losing durability must never drop an emergency trigger.
func (d *Detector) OnEvent(ev PressEvent) (bool, error) {
	switch ev.Kind {
	case ScreenOn:
		return false, nil

	case UserPresent:
		_, err := d.counter.Swap(func(st store.CounterState) store.CounterState {
			st.Count = 0
			return st
		})
		return false, err

	case ScreenOff:
		fired := false
		now := ev.Time.UnixMilli()
		_, err := d.counter.Swap(func(st store.CounterState) store.CounterState {
			// A negative gap means events arrived out of order; count it
			// rather than undercounting the sequence.
			if now-st.LastPressMillis < d.window.Milliseconds() {
				st.Count++
			} else {
				st.Count = 1
			}
			st.LastPressMillis = now
			if st.Count >= d.threshold {
				fired = true
				st.Count = 0
			}
			return st
		})
		if err != nil {
			d.logger.Warn("press counter not persisted", "error", err)
		}
		if fired {
			d.logger.Info("press pattern detected", "presses", d.threshold, "window", d.window)
		}
		return fired, err
	}

	return false, nil
}
