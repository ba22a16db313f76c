package orchestrator

import "time"

// Backoff implements capped exponential backoff for reconnect attempts.
// There is no attempt ceiling: a field camera may be offline for hours and
// must self-heal without operator intervention.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a backoff starting at initial and doubling up to max.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max}
}

// Next returns the delay to wait before the next attempt and advances the
// schedule.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.initial
		return b.current
	}
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

// Reset restores the initial delay after a successful connect.
func (b *Backoff) Reset() {
	b.current = 0
}
