package filesink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_WriteAndFinalize(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "movie.mp4")

	sink, err := Open(dest, "task1")
	require.NoError(t, err)

	_, err = sink.Write([]byte("hello world"))
	require.NoError(t, err)

	_, err = os.Stat(sink.workingPath)
	require.NoError(t, err, "staging file should exist before finalize")

	require.NoError(t, sink.Finalize())

	_, err = os.Stat(sink.workingPath)
	assert.True(t, os.IsNotExist(err), "staging file should be gone after finalize")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestSink_FinalizeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "movie.mp4")

	sink, err := Open(dest, "task1")
	require.NoError(t, err)
	_, err = sink.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, sink.Finalize())

	// A second finalize call (e.g. from a redelivered completion event)
	// must not error even though the staging file is already gone.
	assert.NoError(t, sink.Finalize())
}

func TestSink_DistinctTasksStageToDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "movie.mp4")

	a, err := Open(dest, "task-a")
	require.NoError(t, err)
	b, err := Open(dest, "task-b")
	require.NoError(t, err)
	assert.NotEqual(t, a.workingPath, b.workingPath)

	_, err = a.Write([]byte("from a"))
	require.NoError(t, err)
	_, err = b.Write([]byte("from b, longer"))
	require.NoError(t, err)

	require.NoError(t, a.Finalize())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "from a", string(data))

	// b's finalize overwrites a's output; this is the documented
	// later-wins collision policy, logged rather than silent.
	require.NoError(t, b.Finalize())
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "from b, longer", string(data))
}

func TestSink_WriteAtResumesMidFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "movie.mp4")

	sink, err := Open(dest, "task1")
	require.NoError(t, err)
	require.NoError(t, sink.Preallocate(10))

	_, err = sink.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)
	_, err = sink.WriteAt([]byte("xyz"), 7)
	require.NoError(t, err)

	size, err := sink.CurrentSize()
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	require.NoError(t, sink.Close())
}

func TestUniquePath_NoCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	assert.Equal(t, path, UniquePath(path))
}

func TestUniquePath_AppendsCounter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	got := UniquePath(path)
	assert.Equal(t, filepath.Join(dir, "file(1).zip"), got)
}

func TestUniquePath_SkipsExistingPartFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	require.NoError(t, os.WriteFile(path+PartSuffix, []byte("x"), 0644))

	got := UniquePath(path)
	assert.Equal(t, filepath.Join(dir, "file(1).zip"), got)
}

func TestUniquePath_IncrementsExistingCounter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.zip"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file(1).zip"), []byte("x"), 0644))

	got := UniquePath(filepath.Join(dir, "file(1).zip"))
	assert.Equal(t, filepath.Join(dir, "file(2).zip"), got)
}
