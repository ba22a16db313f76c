// Package alert deduplicates and rate-limits detections, then fans them out
// to the configured notification channels with per-channel failure isolation.
package alert

// Outcome is the result of one delivery attempt on one channel.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// ChannelResult reports what happened on a single channel for one detection.
type ChannelResult struct {
	Channel string
	Outcome Outcome
	Err     error // set only for OutcomeFailed
	// Suppressed is the number of detections suppressed on this
	// (class, channel) pair since the last delivery attempt.
	Suppressed int
}
