package evidence

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/hraban/opus.v2"

	"github.com/lumasafe/guardian/internal/log"
)

// SampleSource is an open microphone delivering mono PCM16 frames.
// Frames must be a size the opus encoder accepts (20ms per frame, i.e.
// SampleRate/50 samples). Close must release the device before returning.
type SampleSource interface {
	// Read returns the next frame, blocking until one is available or
	// ctx is cancelled.
	Read(ctx context.Context) ([]int16, error)

	// Close releases the capture device.
	Close() error
}

// OpenSource opens the microphone for one session. Open failure is a
// session start failure and drives the retry policy upstream.
type OpenSource func(ctx context.Context) (SampleSource, error)

// MicConfig holds audio capture settings.
type MicConfig struct {
	SampleRate int
}

// FrameSize returns the samples per 20ms opus frame.
func (c MicConfig) FrameSize() int { return c.SampleRate / 50 }

// MicRecorder captures audio sessions: PCM16 frames from a SampleSource,
// opus-encoded, written as length-prefixed packets. The framing is
// trivially seekable and a torn tail costs at most one packet.
type MicRecorder struct {
	cfg    MicConfig
	open   OpenSource
	logger *slog.Logger
}

// NewMicRecorder creates a microphone-backed audio recorder.
func NewMicRecorder(cfg MicConfig, open OpenSource) *MicRecorder {
	return &MicRecorder{
		cfg:    cfg,
		open:   open,
		logger: log.Component("mic"),
	}
}

// Record captures one audio session to path.
func (r *MicRecorder) Record(ctx context.Context, path string, started func()) error {
	src, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	defer src.Close()

	enc, err := opus.NewEncoder(r.cfg.SampleRate, 1, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}

	w := bufio.NewWriter(f)
	finalize := func() error {
		ferr := w.Flush()
		if cerr := f.Close(); ferr == nil {
			ferr = cerr
		}
		return ferr
	}

	started()

	packet := make([]byte, 4000)
	for {
		frame, err := src.Read(ctx)
		if err != nil {
			werr := finalize()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Session over; the file is flushed and closed before we
				// acknowledge the stop.
				return werr
			}
			return fmt.Errorf("read microphone: %w", err)
		}

		n, err := enc.Encode(frame, packet)
		if err != nil {
			finalize()
			return fmt.Errorf("encode frame: %w", err)
		}

		var hdr [2]byte
		binary.BigEndian.PutUint16(hdr[:], uint16(n))
		if _, err := w.Write(hdr[:]); err != nil {
			finalize()
			return fmt.Errorf("write packet header: %w", err)
		}
		if _, err := w.Write(packet[:n]); err != nil {
			finalize()
			return fmt.Errorf("write packet: %w", err)
		}
	}
}

// Ext returns the file extension for opus packet streams.
func (r *MicRecorder) Ext() string { return ".opuspkt" }

// Name returns "mic".
func (r *MicRecorder) Name() string { return "mic" }

var _ Recorder = (*MicRecorder)(nil)
