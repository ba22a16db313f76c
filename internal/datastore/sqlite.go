// Package datastore persists detections in SQLite through GORM, with one
// snapshot blob per detection kept on disk next to the database.
package datastore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/skywatch/skywatch-go/internal/errors"
	"github.com/skywatch/skywatch-go/internal/logging"
)

// ErrNotFound is returned when a detection id does not exist.
var ErrNotFound = errors.NewStd("detection not found")

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000

	snapshotCacheTTL     = time.Minute
	snapshotCacheCleanup = 5 * time.Minute
)

// SQLiteStore implements Interface on SQLite with snapshot blobs on disk.
// Writes are serialized with a mutex, reads go straight to the database and
// may run concurrently with the detection loop (WAL mode).
type SQLiteStore struct {
	DBPath      string
	SnapshotDir string

	db      *gorm.DB
	writeMu sync.Mutex
	cache   *gocache.Cache
	log     *slog.Logger
}

// NewSQLiteStore creates a store rooted at the given database path and
// snapshot directory.
func NewSQLiteStore(dbPath, snapshotDir string) *SQLiteStore {
	log := logging.ForService("datastore")
	if log == nil {
		log = slog.Default()
	}
	return &SQLiteStore{
		DBPath:      dbPath,
		SnapshotDir: snapshotDir,
		cache:       gocache.New(snapshotCacheTTL, snapshotCacheCleanup),
		log:         log,
	}
}

// Open sets up the SQLite database connection, runs migrations and removes
// blobs orphaned by a crash mid-append.
func (s *SQLiteStore) Open() error {
	if dir := filepath.Dir(s.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return s.storeError(fmt.Errorf("creating database directory: %w", err))
		}
	}
	if err := os.MkdirAll(s.SnapshotDir, 0o755); err != nil {
		return s.storeError(fmt.Errorf("creating snapshot directory: %w", err))
	}

	dsn := s.DBPath + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return s.storeError(fmt.Errorf("opening SQLite database: %w", err))
	}

	if err := db.AutoMigrate(&Detection{}); err != nil {
		return s.storeError(fmt.Errorf("migrating schema: %w", err))
	}

	s.db = db
	s.cleanupOrphanBlobs()
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save persists a detection and its snapshot atomically. The blob is written
// to a temp file first and renamed into place before the transaction commits,
// so a committed row always has its snapshot. A crash between rename and
// commit leaves an orphan blob which Open cleans up.
func (s *SQLiteStore) Save(d *Detection, snapshot []byte) (uint, error) {
	if s.db == nil {
		return 0, s.storeError(fmt.Errorf("database connection is not initialized"))
	}
	if len(snapshot) == 0 {
		return 0, errors.Newf("refusing to save detection without snapshot").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tmpPath := filepath.Join(s.SnapshotDir, uuid.NewString()+".tmp")
	if err := writeFileSync(tmpPath, snapshot); err != nil {
		return 0, s.storeError(fmt.Errorf("writing snapshot blob: %w", err))
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		_ = os.Remove(tmpPath)
		return 0, s.storeError(fmt.Errorf("starting transaction: %w", tx.Error))
	}

	if err := tx.Create(d).Error; err != nil {
		tx.Rollback()
		_ = os.Remove(tmpPath)
		return 0, s.storeError(fmt.Errorf("inserting detection: %w", err))
	}

	blobName := snapshotName(d.ID)
	blobPath := filepath.Join(s.SnapshotDir, blobName)
	if err := os.Rename(tmpPath, blobPath); err != nil {
		tx.Rollback()
		_ = os.Remove(tmpPath)
		return 0, s.storeError(fmt.Errorf("placing snapshot blob: %w", err))
	}

	d.SnapshotPath = blobName
	if err := tx.Model(&Detection{}).Where("id = ?", d.ID).Update("snapshot_path", blobName).Error; err != nil {
		tx.Rollback()
		_ = os.Remove(blobPath)
		return 0, s.storeError(fmt.Errorf("recording snapshot path: %w", err))
	}

	if err := tx.Commit().Error; err != nil {
		_ = os.Remove(blobPath)
		return 0, s.storeError(fmt.Errorf("committing detection: %w", err))
	}

	return d.ID, nil
}

// Get retrieves a detection by id.
func (s *SQLiteStore) Get(id uint) (*Detection, error) {
	var d Detection
	if err := s.db.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, s.storeError(fmt.Errorf("getting detection %d: %w", id, err))
	}
	return &d, nil
}

// GetSnapshot returns the snapshot blob for a detection id. Recently read
// blobs are served from an in-memory cache.
func (s *SQLiteStore) GetSnapshot(id uint) ([]byte, error) {
	key := strconv.FormatUint(uint64(id), 10)
	if cached, found := s.cache.Get(key); found {
		return cached.([]byte), nil
	}

	d, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.SnapshotDir, d.SnapshotPath))
	if err != nil {
		return nil, s.storeError(fmt.Errorf("reading snapshot for detection %d: %w", id, err))
	}

	s.cache.Set(key, data, gocache.DefaultExpiration)
	return data, nil
}

// Query returns detections ordered by timestamp descending, newest first.
func (s *SQLiteStore) Query(limit, offset int, filter *Filter) ([]Detection, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}

	q := s.db.Model(&Detection{}).Order("timestamp DESC, id DESC").Limit(limit).Offset(offset)
	q = applyFilter(q, filter)

	var detections []Detection
	if err := q.Find(&detections).Error; err != nil {
		return nil, s.storeError(fmt.Errorf("querying detections: %w", err))
	}
	return detections, nil
}

// Count returns the total number of stored detections.
func (s *SQLiteStore) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&Detection{}).Count(&count).Error; err != nil {
		return 0, s.storeError(fmt.Errorf("counting detections: %w", err))
	}
	return count, nil
}

// CountSince returns the number of detections at or after t. Suppressed but
// persisted detections count, they are genuine sightings.
func (s *SQLiteStore) CountSince(t time.Time) (int64, error) {
	var count int64
	if err := s.db.Model(&Detection{}).Where("timestamp >= ?", t).Count(&count).Error; err != nil {
		return 0, s.storeError(fmt.Errorf("counting detections since %s: %w", t, err))
	}
	return count, nil
}

func applyFilter(q *gorm.DB, filter *Filter) *gorm.DB {
	if filter == nil {
		return q
	}
	if filter.Class != "" {
		q = q.Where("class_label = ?", filter.Class)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp < ?", filter.Until)
	}
	if filter.MinConfidence > 0 {
		q = q.Where("confidence >= ?", filter.MinConfidence)
	}
	return q
}

// storeError wraps a storage failure with datastore metadata. Storage errors
// are always reported to the caller, never swallowed.
func (s *SQLiteStore) storeError(err error) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Build()
}

// snapshotName returns the blob file name for a detection id.
func snapshotName(id uint) string {
	return fmt.Sprintf("%d.jpg", id)
}

// writeFileSync writes data and fsyncs before closing, so a rename that
// follows cannot expose a half-written blob.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// cleanupOrphanBlobs removes temp files and snapshot blobs whose detection
// row does not exist, left behind by a crash mid-append.
func (s *SQLiteStore) cleanupOrphanBlobs() {
	entries, err := os.ReadDir(s.SnapshotDir)
	if err != nil {
		s.log.Warn("cannot scan snapshot directory for orphans", "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		if strings.HasSuffix(name, ".tmp") {
			_ = os.Remove(filepath.Join(s.SnapshotDir, name))
			continue
		}

		idStr := strings.TrimSuffix(name, ".jpg")
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}

		var count int64
		if err := s.db.Model(&Detection{}).Where("id = ?", uint(id)).Count(&count).Error; err != nil {
			continue
		}
		if count == 0 {
			s.log.Info("removing orphan snapshot blob", "file", name)
			_ = os.Remove(filepath.Join(s.SnapshotDir, name))
		}
	}
}
