package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surge-downloader/surge/internal/errs"
)

// Add inserts a new task. If task.QueueOrder is 0, it is assigned
// max(queue_order)+1 atomically within the same transaction. Fails if
// task.ID already exists.
func (s *Store) Add(task Task) (Task, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = StatusPending
	}

	err := s.withTx(func(tx *sql.Tx) error {
		if task.QueueOrder == 0 {
			var maxOrder sql.NullInt64
			if err := tx.QueryRow(`SELECT MAX(queue_order) FROM tasks`).Scan(&maxOrder); err != nil {
				return err
			}
			task.QueueOrder = int(maxOrder.Int64) + 1
		}

		_, err := tx.Exec(`
			INSERT INTO tasks (id, url, status, downloaded, total, resumable, capability_checked, queue_order, filename)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, task.URL, string(task.Status), task.Downloaded, nullTotal(task), boolInt(task.Resumable), boolInt(task.CapabilityChecked), task.QueueOrder, task.Filename)
		return err
	})
	if err != nil {
		return Task{}, errs.Wrap(errs.StorageFailure, "store.Add", "insert task: %w", err)
	}
	return task, nil
}

// Update performs a whole-row update by id. Returns NotFound if absent.
func (s *Store) Update(task Task) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks SET url=?, status=?, downloaded=?, total=?, resumable=?, capability_checked=?, queue_order=?, filename=?
			WHERE id=?
		`, task.URL, string(task.Status), task.Downloaded, nullTotal(task), boolInt(task.Resumable), boolInt(task.CapabilityChecked), task.QueueOrder, task.Filename, task.ID)
		if err != nil {
			return errs.Wrap(errs.StorageFailure, "store.Update", "update task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return errs.New(errs.NotFound, "store.Update", fmt.Errorf("task %s not found", task.ID))
		}
		return nil
	})
}

const taskColumns = `id, url, status, downloaded, total, resumable, capability_checked, queue_order, filename`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var status string
	var total sql.NullInt64
	var resumable, checked int
	if err := row.Scan(&t.ID, &t.URL, &status, &t.Downloaded, &total, &resumable, &checked, &t.QueueOrder, &t.Filename); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.Resumable = resumable != 0
	t.CapabilityChecked = checked != 0
	if total.Valid {
		t.Total = total.Int64
		t.HasTotal = true
	}
	return t, nil
}

// Get returns the task with the given id, or NotFound.
func (s *Store) Get(id string) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, errs.New(errs.NotFound, "store.Get", fmt.Errorf("task %s not found", id))
	}
	if err != nil {
		return Task{}, errs.Wrap(errs.StorageFailure, "store.Get", "query task: %w", err)
	}
	return t, nil
}

// GetByQueueOrder returns the task at the given queue position, or NotFound.
func (s *Store) GetByQueueOrder(n int) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE queue_order=?`, n)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, errs.New(errs.NotFound, "store.GetByQueueOrder", fmt.Errorf("queue order %d not found", n))
	}
	if err != nil {
		return Task{}, errs.Wrap(errs.StorageFailure, "store.GetByQueueOrder", "query task: %w", err)
	}
	return t, nil
}

// List enumerates active tasks, optionally filtered by status. No
// ordering is guaranteed; use ListByQueueOrder for queue order.
func (s *Store) List(status ...Status) ([]Task, error) {
	var rows *sql.Rows
	var err error
	if len(status) > 0 {
		rows, err = s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE status=?`, string(status[0]))
	} else {
		rows, err = s.db.Query(`SELECT ` + taskColumns + ` FROM tasks`)
	}
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, "store.List", "query tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListByQueueOrder enumerates active tasks ascending by queue_order.
func (s *Store) ListByQueueOrder() ([]Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY queue_order ASC`)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, "store.ListByQueueOrder", "query tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errs.Wrap(errs.StorageFailure, "store", "scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete removes a task by id. Callers must call NormalizeQueueOrder
// afterward to keep queue_order dense.
func (s *Store) Delete(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM tasks WHERE id=?`, id)
		if err != nil {
			return errs.Wrap(errs.StorageFailure, "store.Delete", "delete task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return errs.New(errs.NotFound, "store.Delete", fmt.Errorf("task %s not found", id))
		}
		return nil
	})
}

// SwapQueueOrders exchanges the queue_order of two tasks atomically.
func (s *Store) SwapQueueOrders(idA, idB string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var orderA, orderB int
		if err := tx.QueryRow(`SELECT queue_order FROM tasks WHERE id=?`, idA).Scan(&orderA); err != nil {
			return errs.New(errs.NotFound, "store.SwapQueueOrders", fmt.Errorf("task %s not found", idA))
		}
		if err := tx.QueryRow(`SELECT queue_order FROM tasks WHERE id=?`, idB).Scan(&orderB); err != nil {
			return errs.New(errs.NotFound, "store.SwapQueueOrders", fmt.Errorf("task %s not found", idB))
		}

		// Stage through a temporary negative order to dodge the unique index
		// on queue_order while both rows briefly share a value mid-swap.
		if _, err := tx.Exec(`UPDATE tasks SET queue_order=? WHERE id=?`, -orderA, idA); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE tasks SET queue_order=? WHERE id=?`, orderA, idB); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE tasks SET queue_order=? WHERE id=?`, orderB, idA); err != nil {
			return err
		}
		return nil
	})
}

// NormalizeQueueOrder reassigns dense 1..K queue_order values, preserving
// relative order. Any task with order 0 or below sorts to the end (by
// order, then id), since its order carries no queue position.
func (s *Store) NormalizeQueueOrder() error {
	return s.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id, queue_order FROM tasks ORDER BY
			CASE WHEN queue_order > 0 THEN 0 ELSE 1 END, queue_order ASC, id ASC`)
		if err != nil {
			return err
		}
		type idOrder struct {
			id    string
			order int
		}
		var all []idOrder
		for rows.Next() {
			var io idOrder
			if err := rows.Scan(&io.id, &io.order); err != nil {
				rows.Close()
				return err
			}
			all = append(all, io)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i, io := range all {
			newOrder := i + 1
			if newOrder == io.order {
				continue
			}
			if _, err := tx.Exec(`UPDATE tasks SET queue_order=? WHERE id=?`, newOrder, io.id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ArchiveTask copies the task's row into the archive table (stamped with
// the current time) and removes it from the active table, in one
// transaction. Archiving an id that's already archived and no longer
// active is a no-op, not an error, so duplicate event delivery from the
// Engine's event bus can't double-archive or fail.
func (s *Store) ArchiveTask(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return nil // already archived or never existed: idempotent no-op
		}
		if err != nil {
			return err
		}

		archivedAt := time.Now().UTC().Format(time.RFC3339Nano)
		_, err = tx.Exec(`
			INSERT INTO archive (id, url, status, downloaded, total, resumable, capability_checked, queue_order, filename, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				url=excluded.url, status=excluded.status, downloaded=excluded.downloaded,
				total=excluded.total, resumable=excluded.resumable,
				capability_checked=excluded.capability_checked, queue_order=excluded.queue_order,
				filename=excluded.filename, archived_at=excluded.archived_at
		`, t.ID, t.URL, string(t.Status), t.Downloaded, nullTotal(t), boolInt(t.Resumable), boolInt(t.CapabilityChecked), t.QueueOrder, t.Filename, archivedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`DELETE FROM tasks WHERE id=?`, id)
		return err
	})
}

// ListArchive enumerates archived tasks, descending by archived_at.
func (s *Store) ListArchive() ([]ArchivedTask, error) {
	rows, err := s.db.Query(`
		SELECT id, url, status, downloaded, total, resumable, capability_checked, queue_order, filename, archived_at
		FROM archive ORDER BY archived_at DESC
	`)
	if err != nil {
		return nil, errs.Wrap(errs.StorageFailure, "store.ListArchive", "query archive: %w", err)
	}
	defer rows.Close()

	var out []ArchivedTask
	for rows.Next() {
		var a ArchivedTask
		var status string
		var total sql.NullInt64
		var resumable, checked int
		var archivedAt string
		if err := rows.Scan(&a.ID, &a.URL, &status, &a.Downloaded, &total, &resumable, &checked, &a.QueueOrder, &a.Filename, &archivedAt); err != nil {
			return nil, errs.Wrap(errs.StorageFailure, "store.ListArchive", "scan archive row: %w", err)
		}
		a.Status = Status(status)
		a.Resumable = resumable != 0
		a.CapabilityChecked = checked != 0
		if total.Valid {
			a.Total = total.Int64
			a.HasTotal = true
		}
		if ts, err := time.Parse(time.RFC3339Nano, archivedAt); err == nil {
			a.ArchivedAt = ts.Unix()
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CloneFromArchive reads an archived task and inserts a fresh PENDING copy
// into the active queue, leaving the archive row untouched.
func (s *Store) CloneFromArchive(archiveID string) (Task, error) {
	var a ArchivedTask
	var status string
	var total sql.NullInt64
	var resumable, checked int
	var archivedAt string

	row := s.db.QueryRow(`
		SELECT id, url, status, downloaded, total, resumable, capability_checked, queue_order, filename, archived_at
		FROM archive WHERE id=?
	`, archiveID)
	if err := row.Scan(&a.ID, &a.URL, &status, &a.Downloaded, &total, &resumable, &checked, &a.QueueOrder, &a.Filename, &archivedAt); err != nil {
		if err == sql.ErrNoRows {
			return Task{}, errs.New(errs.NotFound, "store.CloneFromArchive", fmt.Errorf("archived task %s not found", archiveID))
		}
		return Task{}, errs.Wrap(errs.StorageFailure, "store.CloneFromArchive", "query archive: %w", err)
	}
	a.Status = Status(status)
	if total.Valid {
		a.Total = total.Int64
		a.HasTotal = true
	}

	fresh := a.CloneFromArchive(uuid.New().String())
	return s.Add(fresh)
}

func nullTotal(t Task) any {
	if !t.HasTotal {
		return nil
	}
	return t.Total
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
