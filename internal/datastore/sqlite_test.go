package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	store := NewSQLiteStore(filepath.Join(dir, "test.db"), filepath.Join(dir, "snapshots"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDetection(ts time.Time, class string, confidence float64) *Detection {
	return &Detection{
		Timestamp:  ts,
		Confidence: confidence,
		ClassLabel: class,
		X1:         10, Y1: 20, X2: 110, Y2: 220,
	}
}

func saveN(t *testing.T, store *SQLiteStore, n int, start time.Time) []uint {
	t.Helper()
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		id, err := store.Save(testDetection(start.Add(time.Duration(i)*time.Second), "raptor", 0.9), []byte(fmt.Sprintf("snap-%d", i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestSaveAssignsMonotonicIDs(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	ids := saveN(t, store, 5, start)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1], "ids must be strictly increasing")
	}
}

func TestIDsNeverReusedAfterPrune(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	ids := saveN(t, store, 10, start)
	highest := ids[len(ids)-1]

	deleted, err := store.Prune(RetentionPolicy{Policy: "count", MaxCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, deleted)

	newIDs := saveN(t, store, 3, start.Add(time.Hour))
	for _, id := range newIDs {
		assert.Greater(t, id, highest, "pruned ids must never be reassigned")
	}
}

func TestSaveWritesSnapshotBlob(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Save(testDetection(time.Now().UTC(), "raptor", 0.95), []byte("jpeg-bytes"))
	require.NoError(t, err)

	blob, err := store.GetSnapshot(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), blob)

	// Cached read returns the same bytes.
	blob2, err := store.GetSnapshot(id)
	require.NoError(t, err)
	assert.Equal(t, blob, blob2)
}

func TestSaveRejectsEmptySnapshot(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Save(testDetection(time.Now().UTC(), "raptor", 0.9), nil)
	assert.Error(t, err)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "a failed save must not leave a metadata row")
}

func TestEveryQueriedRowHasSnapshot(t *testing.T) {
	store := newTestStore(t)
	saveN(t, store, 5, time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC))

	rows, err := store.Query(100, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	for i := range rows {
		blob, err := store.GetSnapshot(rows[i].ID)
		require.NoError(t, err, "row %d must have a readable snapshot", rows[i].ID)
		assert.NotEmpty(t, blob)
	}
}

func TestOpenRemovesOrphanBlobs(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")
	store := NewSQLiteStore(filepath.Join(dir, "test.db"), snapDir)
	require.NoError(t, store.Open())

	id, err := store.Save(testDetection(time.Now().UTC(), "raptor", 0.9), []byte("keep"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Simulate a crash mid-append: an orphan blob and a temp file.
	require.NoError(t, os.WriteFile(filepath.Join(snapDir, "99999.jpg"), []byte("orphan"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(snapDir, "abc.tmp"), []byte("partial"), 0o644))

	store2 := NewSQLiteStore(filepath.Join(dir, "test.db"), snapDir)
	require.NoError(t, store2.Open())
	t.Cleanup(func() { _ = store2.Close() })

	_, err = os.Stat(filepath.Join(snapDir, "99999.jpg"))
	assert.True(t, os.IsNotExist(err), "orphan blob must be removed")
	_, err = os.Stat(filepath.Join(snapDir, "abc.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file must be removed")

	blob, err := store2.GetSnapshot(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), blob)
}

func TestQueryOrdersByTimestampDescending(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	saveN(t, store, 10, start)

	rows, err := store.Query(3, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Timestamp.After(rows[i-1].Timestamp), "results must be newest first")
	}
	assert.Equal(t, start.Add(9*time.Second).Unix(), rows[0].Timestamp.Unix())
}

func TestQueryPagination(t *testing.T) {
	store := newTestStore(t)
	saveN(t, store, 10, time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC))

	page1, err := store.Query(4, 0, nil)
	require.NoError(t, err)
	page2, err := store.Query(4, 4, nil)
	require.NoError(t, err)

	require.Len(t, page1, 4)
	require.Len(t, page2, 4)
	assert.NotEqual(t, page1[0].ID, page2[0].ID)
	assert.True(t, page2[0].Timestamp.Before(page1[len(page1)-1].Timestamp) ||
		page2[0].Timestamp.Equal(page1[len(page1)-1].Timestamp))
}

func TestQueryFilterByClass(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	_, err := store.Save(testDetection(now, "raptor", 0.9), []byte("a"))
	require.NoError(t, err)
	_, err = store.Save(testDetection(now.Add(time.Second), "bird", 0.8), []byte("b"))
	require.NoError(t, err)

	rows, err := store.Query(10, 0, &Filter{Class: "raptor"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "raptor", rows[0].ClassLabel)
}

func TestPruneByCountKeepsMostRecent(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)
	saveN(t, store, 150, start)

	deleted, err := store.Prune(RetentionPolicy{Policy: "count", MaxCount: 100})
	require.NoError(t, err)
	assert.Equal(t, 50, deleted)

	count, err := store.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 100, count)

	// The oldest survivor is the 51st detection.
	rows, err := store.Query(1000, 0, nil)
	require.NoError(t, err)
	oldest := rows[len(rows)-1]
	assert.Equal(t, start.Add(50*time.Second).Unix(), oldest.Timestamp.Unix())

	// No orphaned blobs: exactly one per surviving row.
	entries, err := os.ReadDir(store.SnapshotDir)
	require.NoError(t, err)
	assert.Len(t, entries, 100)
}

func TestPruneByAge(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	_, err := store.Save(testDetection(old, "raptor", 0.9), []byte("old"))
	require.NoError(t, err)
	keep, err := store.Save(testDetection(recent, "raptor", 0.9), []byte("new"))
	require.NoError(t, err)

	deleted, err := store.Prune(RetentionPolicy{Policy: "age", MaxAge: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.Get(keep)
	assert.NoError(t, err)
}

func TestPruneNonePolicy(t *testing.T) {
	store := newTestStore(t)
	saveN(t, store, 3, time.Now().UTC())

	deleted, err := store.Prune(RetentionPolicy{Policy: "none"})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestGetUnknownIDReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountSince(t *testing.T) {
	store := newTestStore(t)
	midnight := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	_, err := store.Save(testDetection(midnight.Add(-time.Hour), "raptor", 0.9), []byte("y"))
	require.NoError(t, err)
	_, err = store.Save(testDetection(midnight.Add(time.Hour), "raptor", 0.9), []byte("t"))
	require.NoError(t, err)
	_, err = store.Save(testDetection(midnight.Add(2*time.Hour), "raptor", 0.9), []byte("t2"))
	require.NoError(t, err)

	count, err := store.CountSince(midnight)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestPolygonRoundTrip(t *testing.T) {
	d := testDetection(time.Now().UTC(), "raptor", 0.9)
	require.NoError(t, d.SetPolygon([]Point{{X: 1, Y: 2}, {X: 3, Y: 4}}))

	points, err := d.PolygonPoints()
	require.NoError(t, err)
	assert.Equal(t, []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, points)

	empty := testDetection(time.Now().UTC(), "raptor", 0.9)
	points, err = empty.PolygonPoints()
	require.NoError(t, err)
	assert.Nil(t, points)
}
