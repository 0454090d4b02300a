// Package filesink manages the on-disk lifecycle of one task's output
// file: a working ".part" file that accumulates bytes at arbitrary
// offsets, renamed to its final name only once the transfer completes.
package filesink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/surge-downloader/surge/internal/errs"
	"github.com/surge-downloader/surge/internal/utils"
)

// PartSuffix marks a file as not yet finalized.
const PartSuffix = ".part"

// Sink is a single task's output file, open for random-offset writes
// while in progress.
type Sink struct {
	destPath    string
	workingPath string
	file        *os.File
}

// Open creates (or reopens, for resume) the working file for destPath.
// taskID is folded into the staging name so two tasks that ever end up
// with the same derived destPath (e.g. two concurrent "add" calls
// resolving the same filename before either has started downloading)
// stage into distinct files instead of one task's writes corrupting the
// other's; only the final rename target is shared, per the documented
// per-task-suffix-on-staging design.
func Open(destPath, taskID string) (*Sink, error) {
	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, "filesink.Open", "create directory %s: %w", dir, err)
		}
	}

	workingPath := fmt.Sprintf("%s.%s%s", destPath, taskID, PartSuffix)
	f, err := os.OpenFile(workingPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, "filesink.Open", "open %s: %w", workingPath, err)
	}
	return &Sink{destPath: destPath, workingPath: workingPath, file: f}, nil
}

// Preallocate truncates the working file to size, when the total size is
// known ahead of time. Safe to skip for unknown-size transfers.
func (s *Sink) Preallocate(size int64) error {
	if err := s.file.Truncate(size); err != nil {
		return errs.Wrap(errs.StorageFailure, "filesink.Preallocate", "truncate to %d: %w", size, err)
	}
	return nil
}

// WriteAt writes p at the given offset, for workers resuming mid-file.
func (s *Sink) WriteAt(p []byte, offset int64) (int, error) {
	n, err := s.file.WriteAt(p, offset)
	if err != nil {
		return n, errs.Wrap(errs.StorageFailure, "filesink.WriteAt", "write at %d: %w", offset, err)
	}
	return n, nil
}

// Seek positions the next sequential Write at offset, for resuming a
// streaming transfer partway through an existing .part file.
func (s *Sink) Seek(offset int64) error {
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return errs.Wrap(errs.StorageFailure, "filesink.Seek", "seek to %d: %w", offset, err)
	}
	return nil
}

// Write implements io.Writer by appending at the file's current offset,
// for the common case of a single sequential writer.
func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	if err != nil {
		return n, errs.Wrap(errs.StorageFailure, "filesink.Write", "write: %w", err)
	}
	return n, nil
}

// CurrentSize reports the working file's size on disk.
func (s *Sink) CurrentSize() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, errs.Wrap(errs.StorageFailure, "filesink.CurrentSize", "stat: %w", err)
	}
	return info.Size(), nil
}

// Close releases the underlying file handle without finalizing. Used
// when a task pauses mid-transfer; the ".part" file stays on disk.
func (s *Sink) Close() error {
	return s.file.Close()
}

// Finalize closes the working file and renames it to its final
// destination path, dropping the staging suffix. Finalizing twice (e.g.
// a duplicate completion event) is a no-op the second time: if the
// working file is already gone and the final file exists, that's treated
// as success rather than an error.
//
// Two distinct tasks can still share a destPath (UniquePath only
// resolves collisions against what's on disk at task-creation time, not
// against other tasks queued in the same instant). If that happens, the
// later Finalize call silently overwrites the earlier one's output on
// rename; this logs a warning so the overwrite isn't invisible.
func (s *Sink) Finalize() error {
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return errs.Wrap(errs.StorageFailure, "filesink.Finalize", "close: %w", err)
	}

	if _, err := os.Stat(s.destPath); err == nil {
		utils.Debug("filesink: %s already exists, a concurrent finalize is overwriting it", s.destPath)
	}

	if err := os.Rename(s.workingPath, s.destPath); err != nil {
		if os.IsNotExist(err) {
			if _, statErr := os.Stat(s.destPath); statErr == nil {
				return nil
			}
		}
		return errs.Wrap(errs.StorageFailure, "filesink.Finalize", "rename %s to %s: %w", s.workingPath, s.destPath, err)
	}
	return nil
}

// DestPath returns the final (non-".part") path this sink will produce.
func (s *Sink) DestPath() string {
	return s.destPath
}

// UniquePath returns path unchanged if neither it nor a legacy
// unsuffixed ".part" counterpart exists on disk, otherwise appends "(1)",
// "(2)", ... before the extension until a free name is found. This
// guards against what's already on disk at task-creation time; two tasks
// queued in the same instant can still resolve to the same path before
// either has written anything, in which case Finalize's overwrite
// warning is the backstop.
func UniquePath(path string) string {
	if !exists(path) && !exists(path+PartSuffix) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	name := base
	counter := 1
	if n, ok := trailingCounter(base); ok {
		name = strings.TrimSuffix(base, fmt.Sprintf("(%d)", n))
		counter = n + 1
	}

	for i := 0; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", name, counter+i, ext))
		if !exists(candidate) && !exists(candidate+PartSuffix) {
			return candidate
		}
	}
	return path
}

func trailingCounter(name string) (int, bool) {
	if len(name) < 3 || name[len(name)-1] != ')' {
		return 0, false
	}
	open := strings.LastIndexByte(name, '(')
	if open == -1 {
		return 0, false
	}
	n, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var _ io.Writer = (*Sink)(nil)
