package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surge-downloader/surge/internal/errs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddAssignsQueueOrder(t *testing.T) {
	s := openTestStore(t)

	t1, err := s.Add(Task{URL: "http://a"})
	require.NoError(t, err)
	assert.Equal(t, 1, t1.QueueOrder)

	t2, err := s.Add(Task{URL: "http://b"})
	require.NoError(t, err)
	assert.Equal(t, 2, t2.QueueOrder)
	assert.Equal(t, StatusPending, t2.Status)
}

func TestStore_GetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	added, err := s.Add(Task{URL: "http://a", Total: 1024, HasTotal: true, Resumable: true})
	require.NoError(t, err)

	got, err := s.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, added.URL, got.URL)
	assert.Equal(t, int64(1024), got.Total)
	assert.True(t, got.HasTotal)
	assert.True(t, got.Resumable)
}

func TestStore_GetNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestStore_Update(t *testing.T) {
	s := openTestStore(t)

	added, err := s.Add(Task{URL: "http://a"})
	require.NoError(t, err)

	added.Status = StatusDownloading
	added.Downloaded = 512
	require.NoError(t, s.Update(added))

	got, err := s.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, got.Status)
	assert.Equal(t, int64(512), got.Downloaded)
}

func TestStore_SwapQueueOrdersIsInvolution(t *testing.T) {
	s := openTestStore(t)

	a, err := s.Add(Task{URL: "http://a"})
	require.NoError(t, err)
	b, err := s.Add(Task{URL: "http://b"})
	require.NoError(t, err)

	require.NoError(t, s.SwapQueueOrders(a.ID, b.ID))

	gotA, err := s.Get(a.ID)
	require.NoError(t, err)
	gotB, err := s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.QueueOrder, gotA.QueueOrder)
	assert.Equal(t, a.QueueOrder, gotB.QueueOrder)

	require.NoError(t, s.SwapQueueOrders(a.ID, b.ID))

	gotA, err = s.Get(a.ID)
	require.NoError(t, err)
	gotB, err = s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.QueueOrder, gotA.QueueOrder)
	assert.Equal(t, b.QueueOrder, gotB.QueueOrder)
}

func TestStore_NormalizeQueueOrderIsDense(t *testing.T) {
	s := openTestStore(t)

	a, err := s.Add(Task{URL: "http://a"})
	require.NoError(t, err)
	b, err := s.Add(Task{URL: "http://b"})
	require.NoError(t, err)
	c, err := s.Add(Task{URL: "http://c"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(b.ID))
	require.NoError(t, s.NormalizeQueueOrder())

	tasks, err := s.ListByQueueOrder()
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	seen := make(map[int]bool)
	for _, task := range tasks {
		seen[task.QueueOrder] = true
	}
	assert.True(t, seen[1])
	assert.True(t, seen[2])

	ids := []string{tasks[0].ID, tasks[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, c.ID)
}

func TestStore_ArchiveTaskIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	added, err := s.Add(Task{URL: "http://a"})
	require.NoError(t, err)
	added.Status = StatusCompleted
	require.NoError(t, s.Update(added))

	require.NoError(t, s.ArchiveTask(added.ID))
	_, err = s.Get(added.ID)
	assert.Error(t, err, "task should be gone from the active table")

	// Duplicate archival (e.g. redelivered completion event) is a no-op,
	// not a crash or a second archive row.
	require.NoError(t, s.ArchiveTask(added.ID))

	archive, err := s.ListArchive()
	require.NoError(t, err)
	require.Len(t, archive, 1)
	assert.Equal(t, added.URL, archive[0].URL)
}

func TestStore_CloneFromArchiveResetsProgress(t *testing.T) {
	s := openTestStore(t)

	added, err := s.Add(Task{URL: "http://a", Downloaded: 100, Total: 200, HasTotal: true, Resumable: true})
	require.NoError(t, err)
	added.Status = StatusCompleted
	require.NoError(t, s.Update(added))
	require.NoError(t, s.ArchiveTask(added.ID))

	clone, err := s.CloneFromArchive(added.ID)
	require.NoError(t, err)
	assert.NotEqual(t, added.ID, clone.ID)
	assert.Equal(t, StatusPending, clone.Status)
	assert.Equal(t, int64(0), clone.Downloaded)
	assert.False(t, clone.HasTotal)
	assert.False(t, clone.Resumable)
	assert.Equal(t, added.URL, clone.URL)
}

func TestStore_ListArchiveDescendingByTime(t *testing.T) {
	s := openTestStore(t)

	t1, err := s.Add(Task{URL: "http://a"})
	require.NoError(t, err)
	t1.Status = StatusCompleted
	require.NoError(t, s.Update(t1))
	require.NoError(t, s.ArchiveTask(t1.ID))

	t2, err := s.Add(Task{URL: "http://b"})
	require.NoError(t, err)
	t2.Status = StatusFailed
	require.NoError(t, s.Update(t2))
	require.NoError(t, s.ArchiveTask(t2.ID))

	archive, err := s.ListArchive()
	require.NoError(t, err)
	require.Len(t, archive, 2)
	assert.Equal(t, "http://b", archive[0].URL)
	assert.Equal(t, "http://a", archive[1].URL)
}
