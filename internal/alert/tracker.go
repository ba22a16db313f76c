package alert

import (
	"strings"
	"sync"
	"time"
)

// trackerKey identifies one (class, channel) rate-limit window.
type trackerKey struct {
	class   string
	channel string
}

// IntervalTracker keeps the per-(class, channel) alert state: when the last
// delivery was attempted and how many detections were suppressed since.
// Rate limiting affects notification only, never persistence.
type IntervalTracker struct {
	mu         sync.Mutex
	lastSentAt map[trackerKey]time.Time
	suppressed map[trackerKey]int
	now        func() time.Time
}

// NewIntervalTracker creates an empty tracker.
func NewIntervalTracker() *IntervalTracker {
	return &IntervalTracker{
		lastSentAt: make(map[trackerKey]time.Time),
		suppressed: make(map[trackerKey]int),
		now:        time.Now,
	}
}

// Allow decides whether an alert for the class may go to the channel now.
// When it returns true the attempt time is recorded immediately, on Sent and
// Failed alike, so a persistently failing channel cannot cause a retry storm.
// When it returns false the suppression counter is incremented and the count
// since the last attempt is returned.
func (t *IntervalTracker) Allow(class, channel string, minInterval time.Duration) (allowed bool, suppressedSince int) {
	key := trackerKey{class: strings.ToLower(class), channel: channel}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, seen := t.lastSentAt[key]
	if seen && minInterval > 0 && t.now().Sub(last) < minInterval {
		t.suppressed[key]++
		return false, t.suppressed[key]
	}

	t.lastSentAt[key] = t.now()
	t.suppressed[key] = 0
	return true, 0
}

// Reset clears the state for one (class, channel) pair.
func (t *IntervalTracker) Reset(class, channel string) {
	key := trackerKey{class: strings.ToLower(class), channel: channel}
	t.mu.Lock()
	delete(t.lastSentAt, key)
	delete(t.suppressed, key)
	t.mu.Unlock()
}
