// Package worker executes exactly one task end to end: probe or resume,
// stream its bytes (HTTP or HLS), and hand back a result the Engine uses
// to decide the task's next status. A worker never writes task.Status —
// only task.Downloaded, task.Total, task.Resumable and
// task.CapabilityChecked are its to mutate.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/surge-downloader/surge/internal/errs"
	"github.com/surge-downloader/surge/internal/filesink"
	"github.com/surge-downloader/surge/internal/hls"
	"github.com/surge-downloader/surge/internal/httpclient"
	"github.com/surge-downloader/surge/internal/progress"
	"github.com/surge-downloader/surge/internal/store"
	"github.com/surge-downloader/surge/internal/utils"
)

// Result classifies how Execute ended, so the Engine can drive the
// DOWNLOADING->{COMPLETED,PAUSED,FAILED} transition from a plain value
// instead of distinguishing exception types.
type Result int

const (
	Ok Result = iota
	Paused
	Failed
)

// Outcome is what Execute returns: a Result plus the underlying error
// when Result is Failed (nil otherwise).
type Outcome struct {
	Result Result
	Err    error
}

// Deps bundles the collaborators a worker needs. Deps are shared across
// every concurrent worker the Engine spawns; none of them are
// task-specific.
type Deps struct {
	Store      *store.Store
	HTTP       *httpclient.Client
	HLS        *hls.Downloader
	Aggregator *progress.Aggregator
}

// PauseCheck is polled between chunks/segments for this one task.
type PauseCheck func() bool

// Execute runs task to completion, pause, or failure. task.Status must
// already be DOWNLOADING (the Engine sets that before spawning).
func Execute(ctx context.Context, task store.Task, deps Deps, paused PauseCheck) Outcome {
	progressState := progress.NewState(task.ID, filepath.Base(task.Filename), task.Total, task.HasTotal, task.Downloaded)
	deps.Aggregator.Add(progressState)
	defer deps.Aggregator.Remove(task.ID)

	if isHLSManifest(task.URL) {
		return executeHLS(ctx, task, deps, progressState, paused)
	}
	return executeHTTP(ctx, task, deps, progressState, paused)
}

func isHLSManifest(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawurl), ".m3u8")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

func executeHTTP(ctx context.Context, task store.Task, deps Deps, progressState *progress.State, paused PauseCheck) Outcome {
	if !task.CapabilityChecked {
		probe, err := deps.HTTP.Probe(ctx, task.URL, filepath.Base(task.Filename))
		if err != nil {
			return Outcome{Result: Failed, Err: err}
		}
		task.Resumable = probe.SupportsRange && probe.HasSize
		task.Total = probe.FileSize
		task.HasTotal = probe.HasSize
		task.CapabilityChecked = true
		if task.HasTotal {
			progressState.SetTotal(task.Total)
		}
		if err := deps.Store.Update(task); err != nil {
			return Outcome{Result: Failed, Err: err}
		}
	}

	sink, err := filesink.Open(task.Filename, task.ID)
	if err != nil {
		return Outcome{Result: Failed, Err: err}
	}

	start, task := resolveResumeStart(task, sink)
	if err := deps.Store.Update(task); err != nil {
		sink.Close()
		return Outcome{Result: Failed, Err: err}
	}
	if task.HasTotal && start == 0 {
		if err := sink.Preallocate(task.Total); err != nil {
			sink.Close()
			return Outcome{Result: Failed, Err: err}
		}
	}
	if start > 0 {
		if err := sink.Seek(start); err != nil {
			sink.Close()
			return Outcome{Result: Failed, Err: err}
		}
	}

	onProgress := func(n int64) {
		progressState.Add(n)
		task.Downloaded += n
	}
	downloadErr := deps.HTTP.Download(ctx, task.URL, start, sink, asPauseFunc(paused), onProgress)

	// Persist the final downloaded count regardless of outcome so a
	// pause or failure doesn't lose progress already written to disk.
	if updateErr := deps.Store.Update(task); updateErr != nil && downloadErr == nil {
		downloadErr = updateErr
	}

	if downloadErr == nil {
		progressState.SetPhase(progress.PhaseFinalizing)
		if err := sink.Finalize(); err != nil {
			return Outcome{Result: Failed, Err: err}
		}
		return Outcome{Result: Ok}
	}

	sink.Close()
	if errors.Is(downloadErr, httpclient.ErrPaused) {
		progressState.SetPhase(progress.PhasePaused)
		return Outcome{Result: Paused}
	}
	return Outcome{Result: Failed, Err: downloadErr}
}

// resolveResumeStart decides the byte offset to resume from, per the
// resume contract: trust a shorter .part file over a stale downloaded
// counter, and drop a non-resumable task's leftover .part entirely.
func resolveResumeStart(task store.Task, sink *filesink.Sink) (int64, store.Task) {
	partSize, err := sink.CurrentSize()
	if err != nil {
		return 0, task
	}

	if !task.Resumable {
		if task.Downloaded > 0 || partSize > 0 {
			utils.Debug("worker: task %s is not resumable but had downloaded=%d; restarting from 0", task.ID, task.Downloaded)
			sink.Preallocate(0)
			task.Downloaded = 0
		}
		return 0, task
	}

	if task.Downloaded > 0 && partSize == task.Downloaded {
		return task.Downloaded, task
	}
	if partSize < task.Downloaded {
		utils.Debug("worker: task %s .part (%d bytes) shorter than recorded downloaded=%d; trusting file", task.ID, partSize, task.Downloaded)
		task.Downloaded = partSize
		return partSize, task
	}
	return 0, task
}

func executeHLS(ctx context.Context, task store.Task, deps Deps, progressState *progress.State, paused PauseCheck) Outcome {
	manifest, err := deps.HLS.FetchManifest(ctx, task.URL)
	if err != nil {
		return Outcome{Result: Failed, Err: err}
	}
	media, err := deps.HLS.ResolveVariant(ctx, manifest)
	if err != nil {
		return Outcome{Result: Failed, Err: err}
	}

	task.Total = int64(len(media.Segments))
	task.HasTotal = true
	task.CapabilityChecked = true
	task.Resumable = true // segment-granular resume is always possible
	progressState.SetTotal(task.Total)
	if err := deps.Store.Update(task); err != nil {
		return Outcome{Result: Failed, Err: err}
	}

	workingPath := fmt.Sprintf("%s.%s%s", task.Filename, task.ID, filesink.PartSuffix)
	resumeFrom := int(task.Downloaded)

	lastReported := resumeFrom
	onProgress := func(done, total int) {
		progressState.Add(int64(done - lastReported))
		lastReported = done
		task.Downloaded = int64(done)
		deps.Store.Update(task)
	}

	_, downloadErr := deps.HLS.DownloadVariant(ctx, media, workingPath, resumeFrom, asPauseFunc(paused), onProgress)
	if downloadErr == nil {
		progressState.SetPhase(progress.PhaseFinalizing)
		if _, err := os.Stat(task.Filename); err == nil {
			utils.Debug("worker: %s already exists, a concurrent finalize is overwriting it", task.Filename)
		}
		if err := os.Rename(workingPath, task.Filename); err != nil {
			return Outcome{Result: Failed, Err: errs.Wrap(errs.StorageFailure, "worker.executeHLS", "finalize %s: %w", task.Filename, err)}
		}
		return Outcome{Result: Ok}
	}

	if errors.Is(downloadErr, hls.ErrPaused) {
		progressState.SetPhase(progress.PhasePaused)
		return Outcome{Result: Paused}
	}
	return Outcome{Result: Failed, Err: downloadErr}
}

// asPauseFunc adapts a worker.PauseCheck (nil-safe) to the bool-func
// shape httpclient.Download and hls.DownloadVariant each expect. A nil
// PauseCheck means "never paused".
func asPauseFunc(paused PauseCheck) func() bool {
	if paused == nil {
		return func() bool { return false }
	}
	return func() bool { return paused() }
}
