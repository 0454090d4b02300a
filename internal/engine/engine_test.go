package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surge-downloader/surge/internal/hls"
	"github.com/surge-downloader/surge/internal/httpclient"
	"github.com/surge-downloader/surge/internal/progress"
	"github.com/surge-downloader/surge/internal/store"
	"github.com/surge-downloader/surge/internal/worker"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	deps := worker.Deps{
		Store:      s,
		HTTP:       httpclient.New(),
		HLS:        hls.New(),
		Aggregator: progress.NewAggregator(),
	}
	return New(s, deps, cfg), s
}

func fastScanConfig() Config {
	return Config{MaxParallel: 2, ScanInterval: 10 * time.Millisecond, ScanBackoff: 50 * time.Millisecond}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met within timeout")
}

func TestEngine_ExecutesPendingTaskToCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	e, s := newTestEngine(t, fastScanConfig())
	dest := filepath.Join(t.TempDir(), "out.bin")
	task, err := s.Add(store.Task{URL: srv.URL, Filename: dest})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer func() { e.Stop(); e.Wait() }()

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.Get(task.ID)
		return err == nil && got.Status == store.StatusCompleted
	})
}

func TestEngine_RespectsMaxParallel(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	inflight := 0
	maxObserved := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inflight++
		if inflight > maxObserved {
			maxObserved = inflight
		}
		mu.Unlock()
		<-release
		w.Write([]byte("x"))
		mu.Lock()
		inflight--
		mu.Unlock()
	}))
	defer srv.Close()

	e, s := newTestEngine(t, Config{MaxParallel: 1, ScanInterval: 10 * time.Millisecond, ScanBackoff: 50 * time.Millisecond})
	for i := 0; i < 3; i++ {
		_, err := s.Add(store.Task{URL: srv.URL, Filename: filepath.Join(t.TempDir(), "out.bin")})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer func() { close(release); e.Stop(); e.Wait() }()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inflight >= 1
	})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	got := maxObserved
	mu.Unlock()
	assert.Equal(t, 1, got, "never more than MaxParallel tasks should run concurrently")
}

func TestEngine_PauseTaskWritesPausedStatus(t *testing.T) {
	payload := make([]byte, 512*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	e, s := newTestEngine(t, fastScanConfig())
	dest := filepath.Join(t.TempDir(), "out.bin")
	task, err := s.Add(store.Task{URL: srv.URL, Filename: dest})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer func() { e.Stop(); e.Wait() }()

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.Get(task.ID)
		return err == nil && got.Status == store.StatusDownloading
	})

	require.NoError(t, e.PauseTask(task.ID))

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, got.Status)
}

func TestEngine_ResumeTaskReturnsToPendingAndCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("resumed body"))
	}))
	defer srv.Close()

	e, s := newTestEngine(t, fastScanConfig())
	dest := filepath.Join(t.TempDir(), "out.bin")
	task, err := s.Add(store.Task{URL: srv.URL, Filename: dest, Status: store.StatusPaused})
	require.NoError(t, err)

	require.NoError(t, e.ResumeTask(task.ID))

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer func() { e.Stop(); e.Wait() }()

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.Get(task.ID)
		return err == nil && got.Status == store.StatusCompleted
	})
}

func TestEngine_EmitsCompletedEventAndArchiveListenerArchivesTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("archived soon"))
	}))
	defer srv.Close()

	e, s := newTestEngine(t, fastScanConfig())
	dest := filepath.Join(t.TempDir(), "out.bin")
	task, err := s.Add(store.Task{URL: srv.URL, Filename: dest})
	require.NoError(t, err)

	listener := NewArchiveListener(s)
	e.RegisterListener(listener.OnEvent)

	var mu sync.Mutex
	var events []Event
	e.RegisterListener(func(evt Event) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer func() { e.Stop(); e.Wait() }()

	waitFor(t, 2*time.Second, func() bool {
		_, err := s.Get(task.ID)
		return err != nil // archived means gone from the active table
	})

	archive, err := s.ListArchive()
	require.NoError(t, err)
	require.Len(t, archive, 1)
	assert.Equal(t, task.ID, archive[0].ID)
	assert.Equal(t, store.StatusCompleted, archive[0].Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, EventCompleted, events[0].Kind)
}

func TestEngine_EmitsFailedEventOnTransportFailure(t *testing.T) {
	e, s := newTestEngine(t, fastScanConfig())
	dest := filepath.Join(t.TempDir(), "out.bin")
	task, err := s.Add(store.Task{URL: "http://127.0.0.1:1/nope", Filename: dest})
	require.NoError(t, err)

	var mu sync.Mutex
	var gotFailed bool
	e.RegisterListener(func(evt Event) {
		mu.Lock()
		defer mu.Unlock()
		if evt.TaskID == task.ID && evt.Kind == EventFailed {
			gotFailed = true
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer func() { e.Stop(); e.Wait() }()

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotFailed
	})
}

func TestEngine_ListenersNotifiedInRegistrationOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("order matters"))
	}))
	defer srv.Close()

	e, s := newTestEngine(t, fastScanConfig())
	dest := filepath.Join(t.TempDir(), "out.bin")
	task, err := s.Add(store.Task{URL: srv.URL, Filename: dest})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	e.RegisterListener(func(evt Event) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	e.RegisterListener(func(evt Event) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer func() { e.Stop(); e.Wait() }()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	_ = task

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}
