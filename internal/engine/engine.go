// Package engine is the scheduler: the single authority over task
// status transitions, the concurrency gate, and the event bus that
// feeds the archive listener. It owns no HTTP or HLS logic itself —
// that's internal/worker's job — and never writes downloaded/total,
// only status.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surge-downloader/surge/internal/errs"
	"github.com/surge-downloader/surge/internal/store"
	"github.com/surge-downloader/surge/internal/utils"
	"github.com/surge-downloader/surge/internal/worker"
)

// EventKind classifies what happened to a task for the listeners on the
// event bus.
type EventKind int

const (
	EventCompleted EventKind = iota
	EventFailed
)

// Event is published once per terminal task transition, in the order
// listeners were registered.
type Event struct {
	TaskID string
	Kind   EventKind
	Err    error
}

// Listener receives events synchronously, in registration order, on the
// goroutine that finished the task. The task's slot under MaxParallel is
// already released when listeners run, so a slow listener delays only
// that goroutine's exit (and Wait); ArchiveListener is intentionally cheap.
type Listener func(Event)

// Config tunes the scan loop; zero-value fields fall back to the
// defaults baked into NewDefaultConfig.
type Config struct {
	MaxParallel  int
	ScanInterval time.Duration
	ScanBackoff  time.Duration
}

// NewDefaultConfig matches the teacher's default of 3 parallel
// downloads and a 200ms scan cadence backing off to 1s on store errors.
func NewDefaultConfig() Config {
	return Config{MaxParallel: 3, ScanInterval: 200 * time.Millisecond, ScanBackoff: time.Second}
}

// Engine polls the TaskStore, spawns DownloadWorkers up to MaxParallel,
// and owns every task's status transition.
type Engine struct {
	store *store.Store
	deps  worker.Deps
	cfg   Config

	mu         sync.Mutex
	active     map[string]bool
	pauseFlags map[string]*atomic.Bool

	listenersMu sync.Mutex
	listeners   []Listener

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs an Engine; call Start to begin the scan loop.
func New(s *store.Store, deps worker.Deps, cfg Config) *Engine {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = NewDefaultConfig().MaxParallel
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = NewDefaultConfig().ScanInterval
	}
	if cfg.ScanBackoff <= 0 {
		cfg.ScanBackoff = NewDefaultConfig().ScanBackoff
	}
	return &Engine{
		store:      s,
		deps:       deps,
		cfg:        cfg,
		active:     make(map[string]bool),
		pauseFlags: make(map[string]*atomic.Bool),
		stopCh:     make(chan struct{}),
	}
}

// RegisterListener adds a listener to the event bus. Must be called
// before Start to guarantee it sees every event in this run.
func (e *Engine) RegisterListener(l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Start launches the background scan loop. It returns immediately; the
// loop runs until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.scanLoop(ctx)
}

// Stop signals the scan loop to exit. It does not wait for, pause, or
// force-abort any worker already in flight — those observe their own
// task's pause flag independently.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Wait blocks until the scan loop goroutine has exited after Stop.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) scanLoop(ctx context.Context) {
	defer e.wg.Done()
	interval := e.cfg.ScanInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		if err := e.scanOnce(ctx); err != nil {
			utils.Debug("engine: scan error: %v", err)
			interval = e.cfg.ScanBackoff
		} else {
			interval = e.cfg.ScanInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-time.After(interval):
		}
	}
}

func (e *Engine) scanOnce(ctx context.Context) error {
	tasks, err := e.store.ListByQueueOrder()
	if err != nil {
		return err
	}

	e.mu.Lock()
	activeCount := len(e.active)
	e.mu.Unlock()

	for _, t := range tasks {
		if activeCount >= e.cfg.MaxParallel {
			break
		}
		if t.Status != store.StatusPending {
			continue
		}

		e.mu.Lock()
		if e.active[t.ID] {
			e.mu.Unlock()
			continue
		}
		e.active[t.ID] = true
		e.mu.Unlock()

		if err := e.executeTask(ctx, t); err != nil {
			e.mu.Lock()
			delete(e.active, t.ID)
			e.mu.Unlock()
			utils.Debug("engine: failed to start task %s: %v", t.ID, err)
			continue
		}
		activeCount++
	}
	return nil
}

// executeTask transitions a PENDING task to DOWNLOADING and spawns its
// worker. This is the only path that sets status = DOWNLOADING.
func (e *Engine) executeTask(ctx context.Context, task store.Task) error {
	task.Status = store.StatusDownloading
	if err := e.store.Update(task); err != nil {
		return err
	}

	flag := &atomic.Bool{}
	e.mu.Lock()
	e.pauseFlags[task.ID] = flag
	e.mu.Unlock()

	e.wg.Add(1)
	go e.runWorker(ctx, task, flag)
	return nil
}

func (e *Engine) runWorker(ctx context.Context, task store.Task, pauseFlag *atomic.Bool) {
	defer e.wg.Done()
	outcome := worker.Execute(ctx, task, e.deps, pauseFlag.Load)

	e.mu.Lock()
	delete(e.active, task.ID)
	delete(e.pauseFlags, task.ID)
	e.mu.Unlock()

	switch outcome.Result {
	case worker.Ok:
		e.completeTask(task.ID, pauseFlag)
	case worker.Paused:
		e.finalizePause(task.ID)
	case worker.Failed:
		e.failTask(task.ID, outcome.Err)
	}
}

func (e *Engine) completeTask(taskID string, pauseFlag *atomic.Bool) {
	latest, err := e.store.Get(taskID)
	if err != nil {
		return
	}
	// A pause request can race a worker that was already finishing; if
	// pause_task got there first, it already wrote PAUSED and this
	// worker's clean return is not a completion.
	if pauseFlag.Load() || latest.Status == store.StatusPaused {
		return
	}
	latest.Status = store.StatusCompleted
	if err := e.store.Update(latest); err != nil {
		utils.Debug("engine: failed to mark task %s completed: %v", taskID, err)
		return
	}
	e.emit(Event{TaskID: taskID, Kind: EventCompleted})
}

func (e *Engine) finalizePause(taskID string) {
	latest, err := e.store.Get(taskID)
	if err != nil {
		return
	}
	if latest.Status == store.StatusPaused {
		return // PauseTask already wrote this status
	}
	latest.Status = store.StatusPaused
	if err := e.store.Update(latest); err != nil {
		utils.Debug("engine: failed to mark task %s paused: %v", taskID, err)
	}
}

func (e *Engine) failTask(taskID string, cause error) {
	latest, err := e.store.Get(taskID)
	if err == nil {
		latest.Status = store.StatusFailed
		if err := e.store.Update(latest); err != nil {
			utils.Debug("engine: failed to mark task %s failed: %v", taskID, err)
		}
	}
	e.emit(Event{TaskID: taskID, Kind: EventFailed, Err: cause})
}

func (e *Engine) emit(evt Event) {
	e.listenersMu.Lock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.Unlock()

	for _, l := range listeners {
		l(evt)
	}
}

// PauseTask sets the per-task pause flag (if the task is currently
// running) and writes status = PAUSED immediately, ahead of the
// worker's own clean exit.
func (e *Engine) PauseTask(id string) error {
	e.mu.Lock()
	flag, running := e.pauseFlags[id]
	e.mu.Unlock()
	if running {
		flag.Store(true)
	}

	task, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if task.Status != store.StatusDownloading {
		return nil
	}
	task.Status = store.StatusPaused
	return e.store.Update(task)
}

// PauseAll pauses every currently-downloading task.
func (e *Engine) PauseAll() error {
	tasks, err := e.store.List(store.StatusDownloading)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := e.PauseTask(t.ID); err != nil {
			return err
		}
	}
	return nil
}

// ResumeTask returns a paused task to PENDING so the scan loop picks it
// up again, respecting MaxParallel. It does not touch pause flags; the
// task gets a fresh, cleared flag when the scan loop starts it again.
func (e *Engine) ResumeTask(id string) error {
	task, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if task.Status != store.StatusPaused {
		return errs.Wrap(errs.IllegalState, "engine.ResumeTask", "task %s is not paused", id)
	}
	task.Status = store.StatusPending
	return e.store.Update(task)
}
