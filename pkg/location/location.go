// Package location provides position acquisition and reverse geocoding
// for the response channels. Fixes come from a Provider (the shell
// bridge on phones, a mock in tests); addresses come from a Geocoder.
package location

import (
	"context"
	"time"
)

// Placeholder stands in for an address when geocoding fails. Geocoding
// is best-effort and must never block a dispatch from going out.
const Placeholder = "Unknown location"

// Fix is one position report.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Time      time.Time `json:"time"`
}

// Provider supplies position fixes.
type Provider interface {
	// Current returns the freshest available fix, blocking until one
	// arrives or ctx expires.
	Current(ctx context.Context) (Fix, error)

	// Watch emits a fix roughly every interval until ctx is cancelled.
	// The returned channel is closed on cancellation.
	Watch(ctx context.Context, interval time.Duration) (<-chan Fix, error)
}

// Geocoder resolves a fix to a human-readable address.
type Geocoder interface {
	Reverse(ctx context.Context, fix Fix) (string, error)
}

// Describe reverse-geocodes fix with a bounded timeout, returning
// Placeholder on any failure. This is the only way the response
// channels consume a Geocoder.
func Describe(ctx context.Context, g Geocoder, fix Fix, timeout time.Duration) string {
	if g == nil {
		return Placeholder
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	addr, err := g.Reverse(gctx, fix)
	if err != nil || addr == "" {
		return Placeholder
	}
	return addr
}
