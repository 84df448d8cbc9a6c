// Package evidence runs the continuous record/rotate loop that captures
// audio or video while an emergency response is active. Sessions are
// bounded so files stay small and evidence reaches stable storage
// periodically; video falls back to audio when the camera cannot start.
package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumasafe/guardian/internal/log"
	"github.com/lumasafe/guardian/pkg/store"
)

// Mode selects the capture hardware.
type Mode string

const (
	ModeAudio Mode = "audio"
	ModeVideo Mode = "video"
)

// SessionStatus is the lifecycle state of one recording session.
type SessionStatus string

const (
	StatusStarting SessionStatus = "starting"
	StatusActive   SessionStatus = "active"
	StatusStopped  SessionStatus = "stopped"
	StatusFailed   SessionStatus = "failed"
)

// Session is one bounded recording. Exactly one session is active at a
// time; the file is finalized when the session stops or fails.
type Session struct {
	ID        string        `json:"id"`
	Mode      Mode          `json:"mode"`
	Path      string        `json:"path"`
	StartedAt time.Time     `json:"started_at"`
	Status    SessionStatus `json:"status"`
}

// Recorder captures one session to a file. Record blocks until ctx is
// cancelled or the recorder decides the session is over, and must
// finalize the file before returning; a return is the finalization
// acknowledgment the shutdown path relies on.
//
// started is invoked once the capture device is open and data is
// flowing. A Record that returns an error without having called started
// is a start failure and drives the fallback/retry policy.
type Recorder interface {
	Record(ctx context.Context, path string, started func()) error

	// Ext returns the file extension for sessions of this recorder.
	Ext() string

	// Name returns the backend name (e.g. "camera", "mic", "mock").
	Name() string
}

// Config holds the capture loop policy.
type Config struct {
	// Dir receives the finalized session files.
	Dir string
	// SessionDuration caps a single session before rotation.
	SessionDuration time.Duration
	// SessionCooldown is the pause between sessions.
	SessionCooldown time.Duration
	// AudioRetryBackoff is the wait before retrying a failed audio start.
	AudioRetryBackoff time.Duration
	// VideoStartAttempts is how many consecutive video start failures
	// are tolerated before switching to audio for the rest of the run.
	VideoStartAttempts int
}

// Capture runs the record/rotate loop.
type Capture struct {
	cfg      Config
	video    Recorder
	audio    Recorder
	activity store.ActivityLog
	logger   *slog.Logger

	mu      sync.Mutex
	session *Session
}

// New creates a capture subsystem. video may be nil on devices without
// a camera; audio is required.
func New(cfg Config, video, audio Recorder, activity store.ActivityLog) *Capture {
	return &Capture{
		cfg:      cfg,
		video:    video,
		audio:    audio,
		activity: activity,
		logger:   log.Component("evidence"),
	}
}

// Session returns the current session, if any.
func (c *Capture) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *Capture) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *Capture) setStatus(status SessionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Status = status
	}
}

// Run executes the session loop until ctx is cancelled. The active
// session is always finalized before Run returns. Failures are reported
// through the activity log and never escape as errors; the orchestrator
// treats recording as a best-effort channel.
func (c *Capture) Run(ctx context.Context, mode Mode) {
	defer c.setSession(nil)

	if err := os.MkdirAll(c.cfg.Dir, 0o700); err != nil {
		c.logger.Error("evidence directory unavailable", "dir", c.cfg.Dir, "error", err)
		c.report("Recording unavailable: evidence storage could not be created")
		return
	}

	if mode == ModeVideo && c.video == nil {
		c.report("Video recording unavailable, using audio")
		mode = ModeAudio
	}

	videoFailures := 0

	for ctx.Err() == nil {
		rec := c.audio
		if mode == ModeVideo {
			rec = c.video
		}

		session := &Session{
			ID:        uuid.New().String(),
			Mode:      mode,
			Path:      c.sessionPath(mode, rec.Ext()),
			StartedAt: time.Now(),
			Status:    StatusStarting,
		}
		c.setSession(session)

		started := false
		sctx, cancel := context.WithTimeout(ctx, c.cfg.SessionDuration)
		err := rec.Record(sctx, session.Path, func() {
			started = true
			c.setStatus(StatusActive)
			c.logger.Info("recording session started", "mode", mode, "path", session.Path)
		})
		cancel()

		switch {
		case err != nil && !started && ctx.Err() != nil:
			// Run cancelled while the device was still opening; not a
			// hardware failure, so nothing lands in the activity log.
			c.setStatus(StatusStopped)
			return

		case err != nil && !started:
			c.setStatus(StatusFailed)
			if mode == ModeVideo {
				videoFailures++
				c.report("Video recording failed to start")
				c.logger.Warn("video session start failed", "attempt", videoFailures, "error", err)
				if videoFailures >= c.cfg.VideoStartAttempts {
					// Camera is not coming back this run; audio has no
					// further fallback so it gets the retry loop instead.
					c.report("Switching to audio recording")
					mode = ModeAudio
				}
				continue
			}
			c.report("Audio recording failed to start")
			c.logger.Warn("audio session start failed", "error", err)
			if !sleepCtx(ctx, c.cfg.AudioRetryBackoff) {
				return
			}
			continue

		case err != nil:
			c.setStatus(StatusFailed)
			c.report(fmt.Sprintf("Recording interrupted (%s)", mode))
			c.logger.Warn("recording session failed", "mode", mode, "error", err)

		default:
			c.setStatus(StatusStopped)
			c.report(fmt.Sprintf("Evidence saved: %s (%s, %s)",
				filepath.Base(session.Path), mode, time.Since(session.StartedAt).Round(time.Second)))
		}

		if ctx.Err() != nil {
			return
		}
		if !sleepCtx(ctx, c.cfg.SessionCooldown) {
			return
		}
	}
}

func (c *Capture) sessionPath(mode Mode, ext string) string {
	name := fmt.Sprintf("%s-%s%s", mode, time.Now().Format("20060102-150405.000"), ext)
	return filepath.Join(c.cfg.Dir, name)
}

func (c *Capture) report(description string) {
	if err := c.activity.Append(description); err != nil {
		c.logger.Warn("activity log append failed", "error", err)
	}
}

// sleepCtx waits for d unless ctx is cancelled first.
// Returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
