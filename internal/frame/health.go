package frame

import (
	"sync"
	"time"
)

// HealthTracker records when the last frame was successfully read and
// answers staleness queries without touching the device. A camera that
// stops delivering frames without an explicit error is detected here.
type HealthTracker struct {
	mu          sync.RWMutex
	lastFrameAt time.Time
	staleness   time.Duration
	now         func() time.Time
}

// NewHealthTracker creates a tracker with the given staleness window.
func NewHealthTracker(staleness time.Duration) *HealthTracker {
	return &HealthTracker{
		staleness: staleness,
		now:       time.Now,
	}
}

// MarkFrame records a successful frame read.
func (h *HealthTracker) MarkFrame() {
	h.mu.Lock()
	h.lastFrameAt = h.now()
	h.mu.Unlock()
}

// Reset clears the last frame time, used after reconnect so a fresh
// connection is not immediately reported stale.
func (h *HealthTracker) Reset() {
	h.mu.Lock()
	h.lastFrameAt = h.now()
	h.mu.Unlock()
}

// SetStaleness updates the staleness window.
func (h *HealthTracker) SetStaleness(d time.Duration) {
	h.mu.Lock()
	h.staleness = d
	h.mu.Unlock()
}

// Healthy reports whether a frame arrived within the staleness window.
// A tracker that has never seen a frame is unhealthy.
func (h *HealthTracker) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastFrameAt.IsZero() {
		return false
	}
	return h.now().Sub(h.lastFrameAt) <= h.staleness
}

// LastFrameAt returns the time of the most recent successful read.
func (h *HealthTracker) LastFrameAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastFrameAt
}
