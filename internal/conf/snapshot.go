// snapshot.go immutable view of the settings consumed by the detection loop
package conf

import (
	"strings"
	"time"
)

// Snapshot is an immutable copy of the policy values the detection loop needs
// for one iteration. The orchestrator takes a fresh snapshot between loop
// iterations, never mid-iteration, so a configuration change can never be
// observed half-applied.
type Snapshot struct {
	Threshold      float64
	Interval       time.Duration
	ReadTimeout    time.Duration
	Staleness      time.Duration
	MaxReadRetries int
	WarmupFrames   int
	WarmupPasses   int
	MinBoxArea     int
	Classes        map[string]bool // lowercased accept list, empty accepts all
	PruneEvery     int
	Retention      RetentionSettings
}

// Snapshot derives an immutable loop-policy value from the settings.
// It validates the settings first so the caller can fall back to the
// last known good snapshot on a bad configuration.
func (s *Settings) Snapshot() (Snapshot, error) {
	if err := ValidateSettings(s); err != nil {
		return Snapshot{}, err
	}

	classes := make(map[string]bool, len(s.Detection.Classes))
	for _, c := range s.Detection.Classes {
		c = strings.TrimSpace(strings.ToLower(c))
		if c != "" {
			classes[c] = true
		}
	}

	return Snapshot{
		Threshold:      s.Detection.Threshold,
		Interval:       time.Duration(s.Detection.Interval * float64(time.Second)),
		ReadTimeout:    time.Duration(s.Camera.ReadTimeout) * time.Second,
		Staleness:      time.Duration(s.Camera.Staleness) * time.Second,
		MaxReadRetries: s.Camera.MaxReadRetries,
		WarmupFrames:   s.Camera.WarmupFrames,
		WarmupPasses:   s.Inference.WarmupPasses,
		MinBoxArea:     s.Detection.MinBoxArea,
		Classes:        classes,
		PruneEvery:     s.Output.Retention.PruneEvery,
		Retention:      s.Output.Retention,
	}, nil
}

// Seconds converts a whole-second config value to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// ClassAccepted reports whether a class label passes the configured accept list.
func (sn *Snapshot) ClassAccepted(label string) bool {
	if len(sn.Classes) == 0 {
		return true
	}
	return sn.Classes[strings.ToLower(label)]
}
