package frame

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/errors"
	"github.com/skywatch/skywatch-go/internal/logging"
)

// FFmpegSource captures frames by running ffmpeg as a child process and
// splitting its MJPEG output stream into individual JPEG frames. It handles
// both V4L2 devices and RTSP URLs.
type FFmpegSource struct {
	settings conf.CameraSettings
	health   *HealthTracker
	log      *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	frames chan []byte
	done   chan struct{} // closed when the reader goroutine exits
	stderr *bytes.Buffer
	open   bool
}

// NewFFmpegSource creates a frame source for the configured camera.
func NewFFmpegSource(settings conf.CameraSettings) *FFmpegSource {
	log := logging.ForService("frame-source")
	if log == nil {
		log = slog.Default()
	}
	return &FFmpegSource{
		settings: settings,
		health:   NewHealthTracker(time.Duration(settings.Staleness) * time.Second),
		log:      log,
	}
}

// buildArgs assembles the ffmpeg command line for the configured source.
func (s *FFmpegSource) buildArgs() []string {
	args := []string{"-loglevel", "error", "-hide_banner", "-nostdin"}

	if strings.HasPrefix(s.settings.Source, "rtsp://") {
		args = append(args, "-rtsp_transport", s.settings.Transport)
	} else {
		args = append(args,
			"-f", "v4l2",
			"-framerate", fmt.Sprintf("%d", s.settings.FPS),
			"-video_size", fmt.Sprintf("%dx%d", s.settings.Width, s.settings.Height),
		)
	}

	args = append(args, "-i", s.settings.Source)
	args = append(args, "-f", "mjpeg", "-q:v", "5", "-")
	return args
}

// Open starts the ffmpeg process. Calling Open on an already-open source is
// a no-op success.
func (s *FFmpegSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	cmd := exec.Command(s.settings.FfmpegPath, s.buildArgs()...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.New(fmt.Errorf("creating ffmpeg stdout pipe: %w", err)).
			Component("frame-source").
			Category(errors.CategoryCamera).
			Build()
	}

	if err := cmd.Start(); err != nil {
		return errors.New(fmt.Errorf("starting ffmpeg: %w", err)).
			Component("frame-source").
			Category(errors.CategoryCamera).
			Context("source", s.settings.Source).
			Build()
	}

	frames := make(chan []byte, 1)
	done := make(chan struct{})
	go s.readFrames(stdout, frames, done)

	s.cmd = cmd
	s.frames = frames
	s.done = done
	s.stderr = stderr
	s.open = true
	s.health.Reset()

	s.log.Info("camera opened", "source", s.settings.Source)

	// Respect cancellation that raced with process start.
	if ctx.Err() != nil {
		s.closeLocked()
		return ctx.Err()
	}
	return nil
}

// readFrames splits the ffmpeg MJPEG stream into frames and keeps only the
// most recent one buffered. It exits, closing done, when the pipe closes.
func (s *FFmpegSource) readFrames(r io.Reader, frames chan []byte, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	scanner.Split(scanJPEG)

	for scanner.Scan() {
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())

		// Drop the stale frame if the consumer has not kept up.
		select {
		case frames <- data:
		default:
			select {
			case <-frames:
			default:
			}
			frames <- data
		}
	}

	if err := scanner.Err(); err != nil {
		s.log.Warn("frame stream ended with error", "error", err)
	}
}

// ReadFrame returns the next frame, blocking up to the configured read
// timeout. A dead ffmpeg process yields ErrDeviceGone, an empty window
// yields ErrReadTimeout.
func (s *FFmpegSource) ReadFrame(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, ErrNotOpen
	}
	frames := s.frames
	done := s.done
	timeout := time.Duration(s.settings.ReadTimeout) * time.Second
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-frames:
		s.health.MarkFrame()
		return &Frame{
			Data:       data,
			Width:      s.settings.Width,
			Height:     s.settings.Height,
			CapturedAt: time.Now().UTC(),
		}, nil
	case <-done:
		return nil, fmt.Errorf("%w: %s", ErrDeviceGone, s.stderrTail())
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}

// stderrTail returns the last line of ffmpeg's stderr for diagnostics.
func (s *FFmpegSource) stderrTail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stderr == nil {
		return "ffmpeg exited"
	}
	lines := strings.Split(strings.TrimSpace(s.stderr.String()), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		return "ffmpeg exited"
	}
	return lines[len(lines)-1]
}

// IsHealthy reports whether the last successful read happened within the
// staleness window. It performs no I/O.
func (s *FFmpegSource) IsHealthy() bool {
	return s.health.Healthy()
}

// LastFrameAt returns the time of the most recent successful read.
func (s *FFmpegSource) LastFrameAt() time.Time {
	return s.health.LastFrameAt()
}

// Close stops the ffmpeg process and releases the device. It is idempotent.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *FFmpegSource) closeLocked() error {
	if !s.open {
		return nil
	}
	s.open = false

	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			s.log.Debug("killing ffmpeg", "error", err)
		}
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.log.Info("camera closed", "source", s.settings.Source)
	return nil
}
