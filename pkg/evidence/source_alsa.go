package evidence

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// ALSASource captures mono PCM16 from an ALSA device via arecord.
// A reader goroutine pumps fixed-size frames into a channel so Read can
// honor context cancellation while the pipe blocks.
type ALSASource struct {
	cmd    *exec.Cmd
	frames chan []int16
	errCh  chan error
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// OpenALSA returns an OpenSource that starts arecord on the given
// device for each session.
func OpenALSA(device string, cfg MicConfig) OpenSource {
	return func(ctx context.Context) (SampleSource, error) {
		cmd := exec.Command("arecord",
			"-D", device,
			"-f", "S16_LE",
			"-r", strconv.Itoa(cfg.SampleRate),
			"-c", "1",
			"-t", "raw",
			"-q",
		)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("arecord pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start arecord: %w", err)
		}

		s := &ALSASource{
			cmd:    cmd,
			frames: make(chan []int16, 8),
			errCh:  make(chan error, 1),
			done:   make(chan struct{}),
		}
		go s.pump(stdout, cfg.FrameSize())
		return s, nil
	}
}

func (s *ALSASource) pump(r io.Reader, frameSize int) {
	defer close(s.frames)

	buf := make([]byte, frameSize*2)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			s.errCh <- err
			return
		}
		frame := make([]int16, frameSize)
		for i := range frame {
			frame[i] = int16(buf[i*2]) | int16(buf[i*2+1])<<8
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

// Read returns the next frame or the context error.
func (s *ALSASource) Read(ctx context.Context) ([]int16, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			select {
			case err := <-s.errCh:
				return nil, fmt.Errorf("arecord stream: %w", err)
			default:
				return nil, io.EOF
			}
		}
		return frame, nil
	}
}

// Close stops arecord and releases the device.
func (s *ALSASource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	// Reap the process; the pump goroutine exits on the broken pipe.
	s.cmd.Wait()
	return nil
}

var _ SampleSource = (*ALSASource)(nil)
