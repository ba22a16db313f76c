// prune.go retention pruning of old detections and their snapshot blobs
package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

const (
	pruneBatchSize  = 25
	maxUsageBatches = 200 // hard stop for the usage policy loop
)

// Prune deletes the oldest detections beyond the retention policy, snapshots
// included. It returns the number of detections removed.
func (s *SQLiteStore) Prune(policy RetentionPolicy) (int, error) {
	switch policy.Policy {
	case "", "none":
		return 0, nil
	case "age":
		return s.pruneByAge(policy.MaxAge)
	case "count":
		return s.pruneByCount(policy.MaxCount)
	case "usage":
		return s.pruneByUsage(policy.MaxUsage)
	default:
		return 0, s.storeError(fmt.Errorf("unknown retention policy %q", policy.Policy))
	}
}

// pruneByAge removes detections older than maxAge.
func (s *SQLiteStore) pruneByAge(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	var victims []Detection
	if err := s.db.Where("timestamp < ?", cutoff).Order("timestamp ASC, id ASC").Find(&victims).Error; err != nil {
		return 0, s.storeError(fmt.Errorf("selecting expired detections: %w", err))
	}
	return s.deleteDetections(victims)
}

// pruneByCount keeps only the maxCount most recent detections.
func (s *SQLiteStore) pruneByCount(maxCount int) (int, error) {
	if maxCount <= 0 {
		return 0, nil
	}
	total, err := s.Count()
	if err != nil {
		return 0, err
	}
	excess := int(total) - maxCount
	if excess <= 0 {
		return 0, nil
	}

	var victims []Detection
	if err := s.db.Order("timestamp ASC, id ASC").Limit(excess).Find(&victims).Error; err != nil {
		return 0, s.storeError(fmt.Errorf("selecting excess detections: %w", err))
	}
	return s.deleteDetections(victims)
}

// pruneByUsage removes oldest detections in batches until disk usage of the
// snapshot volume drops below the ceiling, or the store is empty.
func (s *SQLiteStore) pruneByUsage(maxUsage float64) (int, error) {
	if maxUsage <= 0 {
		return 0, nil
	}

	deleted := 0
	for i := 0; i < maxUsageBatches; i++ {
		usage, err := disk.Usage(s.SnapshotDir)
		if err != nil {
			return deleted, s.storeError(fmt.Errorf("reading disk usage: %w", err))
		}
		if usage.UsedPercent <= maxUsage {
			return deleted, nil
		}

		var victims []Detection
		if err := s.db.Order("timestamp ASC, id ASC").Limit(pruneBatchSize).Find(&victims).Error; err != nil {
			return deleted, s.storeError(fmt.Errorf("selecting detections for usage prune: %w", err))
		}
		if len(victims) == 0 {
			return deleted, nil
		}

		n, err := s.deleteDetections(victims)
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// deleteDetections removes the given rows and then their blobs. Rows go
// first so a failure can only leave orphan blobs, which Open cleans up,
// never a visible row without its snapshot.
func (s *SQLiteStore) deleteDetections(victims []Detection) (int, error) {
	if len(victims) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ids := make([]uint, 0, len(victims))
	for i := range victims {
		ids = append(ids, victims[i].ID)
	}

	if err := s.db.Delete(&Detection{}, ids).Error; err != nil {
		return 0, s.storeError(fmt.Errorf("deleting detections: %w", err))
	}

	for i := range victims {
		s.cache.Delete(strconv.FormatUint(uint64(victims[i].ID), 10))
		if victims[i].SnapshotPath == "" {
			continue
		}
		if err := os.Remove(filepath.Join(s.SnapshotDir, victims[i].SnapshotPath)); err != nil && !os.IsNotExist(err) {
			s.log.Warn("removing pruned snapshot blob", "id", victims[i].ID, "error", err)
		}
	}

	return len(ids), nil
}
