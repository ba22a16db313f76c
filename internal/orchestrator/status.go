package orchestrator

import (
	"sync"
	"time"
)

// DetectionSummary is a compact view of the most recent accepted detection.
type DetectionSummary struct {
	ID         uint      `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Class      string    `json:"class"`
	Species    string    `json:"species,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Status is a point-in-time snapshot of the pipeline, safe to read while the
// detection loop runs.
type Status struct {
	State             string            `json:"state"`
	CameraHealthy     bool              `json:"camera_healthy"`
	LastFrameAt       time.Time         `json:"last_frame_at"`
	LastDetection     *DetectionSummary `json:"last_detection,omitempty"`
	TotalDetections   int64             `json:"total_detections"`
	DetectionsToday   int64             `json:"detections_today"`
	ReconnectAttempts int               `json:"reconnect_attempts"`
	LastError         string            `json:"last_error,omitempty"`
	ConfigValid       bool              `json:"config_valid"`
}

// statusStore holds the mutable status fields behind a mutex so the HTTP
// handlers can read them while the loop writes them.
type statusStore struct {
	mu sync.RWMutex

	state             State
	lastFrameAt       time.Time
	lastDetection     *DetectionSummary
	reconnectAttempts int
	lastError         string
	configValid       bool
}

func newStatusStore() *statusStore {
	return &statusStore{state: StateIdle, configValid: true}
}

func (s *statusStore) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *statusStore) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *statusStore) setLastFrame(t time.Time) {
	s.mu.Lock()
	s.lastFrameAt = t
	s.mu.Unlock()
}

func (s *statusStore) setLastDetection(d *DetectionSummary) {
	s.mu.Lock()
	s.lastDetection = d
	s.mu.Unlock()
}

func (s *statusStore) setLastError(err error) {
	s.mu.Lock()
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()
}

func (s *statusStore) setConfigValid(ok bool) {
	s.mu.Lock()
	s.configValid = ok
	s.mu.Unlock()
}

func (s *statusStore) incReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectAttempts++
	return s.reconnectAttempts
}

func (s *statusStore) setReconnectAttempts(n int) {
	s.mu.Lock()
	s.reconnectAttempts = n
	s.mu.Unlock()
}

// snapshot copies the mutable fields into a Status value.
func (s *statusStore) snapshot(healthy bool) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *DetectionSummary
	if s.lastDetection != nil {
		c := *s.lastDetection
		last = &c
	}
	return Status{
		State:             s.state.String(),
		CameraHealthy:     healthy,
		LastFrameAt:       s.lastFrameAt,
		LastDetection:     last,
		ReconnectAttempts: s.reconnectAttempts,
		LastError:         s.lastError,
		ConfigValid:       s.configValid,
	}
}
