package engine

import "github.com/surge-downloader/surge/internal/store"

// ArchiveListener moves every terminal task (completed or failed) into
// the archive table, keeping the active queue limited to tasks still in
// flight or waiting to run.
type ArchiveListener struct {
	store *store.Store
}

// NewArchiveListener constructs a listener ready to register on an
// Engine's event bus via Engine.RegisterListener(l.OnEvent).
func NewArchiveListener(s *store.Store) *ArchiveListener {
	return &ArchiveListener{store: s}
}

// OnEvent archives the task on Completed or Failed; ArchiveTask is
// idempotent, so duplicate delivery is harmless.
func (l *ArchiveListener) OnEvent(evt Event) {
	switch evt.Kind {
	case EventCompleted, EventFailed:
		l.store.ArchiveTask(evt.TaskID)
	}
}
