// interfaces.go: defines the interface for detection store operations
package datastore

import (
	"time"
)

// Filter narrows Query results. Zero values mean "no constraint".
type Filter struct {
	Class         string
	Since         time.Time
	Until         time.Time
	MinConfidence float64
}

// RetentionPolicy describes which old detections Prune removes.
type RetentionPolicy struct {
	Policy   string        // "none", "age", "count" or "usage"
	MaxAge   time.Duration // for the age policy
	MaxCount int           // for the count policy
	MaxUsage float64       // disk usage percent ceiling for the usage policy
}

// Interface abstracts the detection store. Appends are serialized internally,
// reads are safe to run concurrently with the detection loop.
type Interface interface {
	Open() error
	Close() error

	// Save persists the detection metadata and its snapshot atomically and
	// returns the assigned id. A metadata row is never visible without its
	// snapshot blob.
	Save(d *Detection, snapshot []byte) (uint, error)

	Get(id uint) (*Detection, error)
	GetSnapshot(id uint) ([]byte, error)

	// Query returns detections ordered by timestamp descending.
	Query(limit, offset int, filter *Filter) ([]Detection, error)
	Count() (int64, error)
	CountSince(t time.Time) (int64, error)

	// Prune removes the oldest detections and their snapshots per the policy
	// and returns how many were deleted. It is an explicit operation, never a
	// hidden side effect of Save.
	Prune(policy RetentionPolicy) (int, error)
}
