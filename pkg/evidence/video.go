package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/lumasafe/guardian/internal/log"
)

// CameraConfig selects and configures the capture device.
type CameraConfig struct {
	Device int
	Width  int
	Height int
	FPS    float64
}

// CameraRecorder captures video sessions through OpenCV. The camera is
// opened per session and released when the session ends, so the device
// is free between rotations and after cancellation.
type CameraRecorder struct {
	cfg    CameraConfig
	logger *slog.Logger
}

// NewCameraRecorder creates a camera-backed video recorder.
func NewCameraRecorder(cfg CameraConfig) *CameraRecorder {
	return &CameraRecorder{
		cfg:    cfg,
		logger: log.Component("camera"),
	}
}

// Record captures one video session to path. The device open, the first
// frame, and the writer open all count as session start; failure before
// started() is what drives the audio fallback upstream.
func (r *CameraRecorder) Record(ctx context.Context, path string, started func()) error {
	cam, err := gocv.OpenVideoCapture(r.cfg.Device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", r.cfg.Device, err)
	}
	defer cam.Close()

	cam.Set(gocv.VideoCaptureFrameWidth, float64(r.cfg.Width))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(r.cfg.Height))
	cam.Set(gocv.VideoCaptureFPS, r.cfg.FPS)

	img := gocv.NewMat()
	defer img.Close()

	// Some devices open but never deliver; require a frame before
	// declaring the session started.
	if ok := cam.Read(&img); !ok || img.Empty() {
		return errors.New("camera produced no frames")
	}

	writer, err := gocv.VideoWriterFile(path, "MJPG", r.cfg.FPS, img.Cols(), img.Rows(), true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	defer writer.Close()

	started()

	if err := writer.Write(img); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			// Deferred closes flush and finalize the container before
			// Record returns, which is the shutdown contract.
			return nil
		default:
		}

		if ok := cam.Read(&img); !ok {
			return errors.New("camera stream ended")
		}
		if img.Empty() {
			continue
		}
		if err := writer.Write(img); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
}

// Ext returns the container extension.
func (r *CameraRecorder) Ext() string { return ".avi" }

// Name returns "camera".
func (r *CameraRecorder) Name() string { return "camera" }

var _ Recorder = (*CameraRecorder)(nil)
