package evidence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lumasafe/guardian/pkg/store"
)

func testConfig(dir string) Config {
	return Config{
		Dir:                dir,
		SessionDuration:    40 * time.Millisecond,
		SessionCooldown:    10 * time.Millisecond,
		AudioRetryBackoff:  20 * time.Millisecond,
		VideoStartAttempts: 3,
	}
}

func TestSessionRotation(t *testing.T) {
	audio := NewMockRecorder("mock-mic")
	c := New(testConfig(t.TempDir()), nil, audio, store.NewMemActivityLog())

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Millisecond)
	defer cancel()
	c.Run(ctx, ModeAudio)

	if audio.Opens() < 2 {
		t.Errorf("expected at least 2 rotated sessions, got %d", audio.Opens())
	}
	if audio.Finalized() != audio.Opens() {
		t.Errorf("every session must be finalized: opens=%d finalized=%d", audio.Opens(), audio.Finalized())
	}
	if _, ok := c.Session(); ok {
		t.Error("expected no session tracked after Run returned")
	}
}

func TestVideoFallbackAfterConsecutiveStartFailures(t *testing.T) {
	video := NewMockRecorder("mock-camera")
	video.FailNextStarts(100) // camera never comes back
	audio := NewMockRecorder("mock-mic")
	activity := store.NewMemActivityLog()

	c := New(testConfig(t.TempDir()), video, audio, activity)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	c.Run(ctx, ModeVideo)

	if video.Opens() != 0 {
		t.Errorf("video must never open, got %d", video.Opens())
	}
	if audio.Opens() < 1 {
		t.Error("expected audio loop to take over")
	}

	var videoFailures, switches int
	for _, desc := range activity.Descriptions() {
		switch {
		case desc == "Video recording failed to start":
			videoFailures++
		case desc == "Switching to audio recording":
			switches++
		}
	}
	if videoFailures != 3 {
		t.Errorf("expected 3 video failure entries, got %d", videoFailures)
	}
	if switches != 1 {
		t.Errorf("expected exactly one switch entry, got %d", switches)
	}
}

func TestVideoNotRetriedAfterFallback(t *testing.T) {
	video := NewMockRecorder("mock-camera")
	video.FailNextStarts(3)
	audio := NewMockRecorder("mock-mic")

	c := New(testConfig(t.TempDir()), video, audio, store.NewMemActivityLog())

	// Long enough for several audio rotations after the fallback
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	c.Run(ctx, ModeVideo)

	// The three scripted failures were consumed; had video been retried
	// it would now succeed and register opens.
	if video.Opens() != 0 {
		t.Errorf("video was retried after fallback: opens=%d", video.Opens())
	}
	if audio.Opens() < 2 {
		t.Errorf("expected audio rotations after fallback, got %d", audio.Opens())
	}
}

func TestAudioStartRetriesWithBackoff(t *testing.T) {
	audio := NewMockRecorder("mock-mic")
	audio.FailNextStarts(1)
	activity := store.NewMemActivityLog()

	c := New(testConfig(t.TempDir()), nil, audio, activity)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	c.Run(ctx, ModeAudio)

	if audio.Opens() < 1 {
		t.Error("expected audio to recover after retry")
	}

	failures := 0
	for _, desc := range activity.Descriptions() {
		if desc == "Audio recording failed to start" {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("expected 1 audio failure entry, got %d", failures)
	}
}

func TestCancelFinalizesActiveSession(t *testing.T) {
	audio := NewMockRecorder("mock-mic")
	cfg := testConfig(t.TempDir())
	cfg.SessionDuration = time.Hour // session outlives the test

	c := New(cfg, nil, audio, store.NewMemActivityLog())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, ModeAudio)
		close(done)
	}()

	// Wait for the session to go active
	deadline := time.After(time.Second)
	for {
		if s, ok := c.Session(); ok && s.Status == StatusActive {
			break
		}
		select {
		case <-deadline:
			t.Fatal("session never became active")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if audio.Recording() {
		t.Error("session still open after Run returned")
	}
	if audio.Finalized() != 1 {
		t.Errorf("expected the active session finalized, got %d", audio.Finalized())
	}
}

// stuckStartRecorder never gets past the device-open phase; it blocks
// until the session context is cancelled and reports no start.
type stuckStartRecorder struct{}

func (stuckStartRecorder) Record(ctx context.Context, path string, started func()) error {
	<-ctx.Done()
	return ctx.Err()
}
func (stuckStartRecorder) Ext() string  { return ".mock" }
func (stuckStartRecorder) Name() string { return "stuck" }

func TestCancelDuringStartNotReportedAsFailure(t *testing.T) {
	activity := store.NewMemActivityLog()
	cfg := testConfig(t.TempDir())
	cfg.SessionDuration = time.Hour // open phase outlives the test

	c := New(cfg, nil, stuckStartRecorder{}, activity)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, ModeAudio)
		close(done)
	}()

	// Let the loop get stuck opening the device
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	for _, desc := range activity.Descriptions() {
		if strings.Contains(desc, "failed to start") {
			t.Errorf("shutdown logged as start failure: %q", desc)
		}
	}
}

func TestVideoUnavailableFallsBackImmediately(t *testing.T) {
	audio := NewMockRecorder("mock-mic")
	activity := store.NewMemActivityLog()
	c := New(testConfig(t.TempDir()), nil, audio, activity)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	c.Run(ctx, ModeVideo)

	if audio.Opens() < 1 {
		t.Error("expected audio to run when no camera recorder exists")
	}
	joined := strings.Join(activity.Descriptions(), "\n")
	if !strings.Contains(joined, "Video recording unavailable") {
		t.Error("expected unavailability to be reported")
	}
}

func TestSessionMetadataReported(t *testing.T) {
	audio := NewMockRecorder("mock-mic")
	activity := store.NewMemActivityLog()
	c := New(testConfig(t.TempDir()), nil, audio, activity)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	c.Run(ctx, ModeAudio)

	saved := 0
	for _, desc := range activity.Descriptions() {
		if strings.HasPrefix(desc, "Evidence saved: ") {
			saved++
			if !strings.Contains(desc, "(audio,") {
				t.Errorf("expected mode in entry, got %q", desc)
			}
		}
	}
	if saved < 1 {
		t.Error("expected at least one evidence-saved entry")
	}
}
