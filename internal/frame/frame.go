// Package frame abstracts the camera: a Source hands out single frames with
// bounded read timeouts and reports connection health without doing I/O.
package frame

import (
	"context"
	"errors"
	"time"
)

// Read error sentinels. Callers treat ErrDeviceGone as demanding a full
// reconnect and ErrReadTimeout as a transient retry.
var (
	ErrReadTimeout = errors.New("frame read timed out")
	ErrDeviceGone  = errors.New("camera device gone")
	ErrNotOpen     = errors.New("frame source is not open")
)

// Frame is one captured image.
type Frame struct {
	Data       []byte // encoded JPEG bytes
	Width      int
	Height     int
	CapturedAt time.Time
}

// Source is the camera capability consumed by the orchestrator.
// Open must be idempotent, ReadFrame blocks up to the configured timeout,
// and IsHealthy only inspects recorded state, it performs no I/O.
type Source interface {
	Open(ctx context.Context) error
	ReadFrame(ctx context.Context) (*Frame, error)
	IsHealthy() bool
	Close() error
}
