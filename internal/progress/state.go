// Package progress tracks per-task transfer progress, aggregates it
// across every active task, and renders it to a terminal.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is a task's progress phase, tracked independently of its store
// status so the renderer can distinguish "probing" / "writing" /
// "renaming into place" within a single DOWNLOADING task.
type Phase string

const (
	PhaseConnecting  Phase = "connecting"
	PhaseDownloading Phase = "downloading"
	PhaseFinalizing  Phase = "finalizing"
	PhasePaused      Phase = "paused"
)

// State is one task's live progress counters. Downloaded is updated by
// the DownloadWorker as bytes land on disk; everything else derives a
// smoothed speed from it on demand.
type State struct {
	ID         string
	Filename   string
	Downloaded atomic.Int64
	Total      int64
	HasTotal   bool

	mu                sync.Mutex
	phase             Phase
	startTime         time.Time
	sessionStartBytes int64
	lastSpeed         float64
	lastSampleAt      time.Time
	lastSampleBytes   int64
}

// NewState creates a State starting from downloaded bytes already on
// disk (e.g. a task resuming after a pause). It starts in CONNECTING
// and moves to DOWNLOADING the first time Add records non-zero bytes,
// unless downloaded already has a head start (a resumed task skips
// straight to DOWNLOADING since bytes already exist on disk).
func NewState(id, filename string, total int64, hasTotal bool, downloaded int64) *State {
	s := &State{ID: id, Filename: filename, Total: total, HasTotal: hasTotal}
	s.Downloaded.Store(downloaded)
	now := time.Now()
	s.startTime = now
	s.sessionStartBytes = downloaded
	s.lastSampleAt = now
	s.lastSampleBytes = downloaded
	if downloaded > 0 {
		s.phase = PhaseDownloading
	} else {
		s.phase = PhaseConnecting
	}
	return s
}

// SpeedSmoothingAlpha weights how much a new instantaneous speed sample
// shifts the running EMA; 0.3 matches the console reporter this was
// grown from.
const SpeedSmoothingAlpha = 0.3

// Snapshot is an immutable read of a State at one instant.
type Snapshot struct {
	ID         string
	Filename   string
	Downloaded int64
	Total      int64
	HasTotal   bool
	Phase      Phase
	Speed      float64 // bytes/sec, EMA-smoothed
	ETA        time.Duration
	HasETA     bool
	Elapsed    time.Duration
}

// ETAFormatted renders ETA as MM:SS, or "00:00" when no ETA is known
// yet (no total, or zero/negative speed).
func (s Snapshot) ETAFormatted() string {
	if !s.HasETA {
		return "00:00"
	}
	d := s.ETA.Round(time.Second)
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Percentage clamps Downloaded/Total to [0,100]; 0 if Total is unknown.
func (s Snapshot) Percentage() int {
	if !s.HasTotal || s.Total <= 0 {
		return 0
	}
	pct := int(float64(s.Downloaded) / float64(s.Total) * 100)
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// Snapshot computes the current smoothed speed and returns an immutable
// view. Calling Snapshot repeatedly (e.g. once per render tick) is how
// the EMA accumulates: each call both reads and updates lastSpeed.
func (s *State) Snapshot() Snapshot {
	downloaded := s.Downloaded.Load()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	intervalSeconds := now.Sub(s.lastSampleAt).Seconds()
	var instantSpeed float64
	if intervalSeconds > 0 {
		deltaBytes := downloaded - s.lastSampleBytes
		if deltaBytes > 0 {
			instantSpeed = float64(deltaBytes) / intervalSeconds
		}
	}
	if s.lastSpeed == 0 {
		s.lastSpeed = instantSpeed
	} else {
		s.lastSpeed = SpeedSmoothingAlpha*instantSpeed + (1-SpeedSmoothingAlpha)*s.lastSpeed
	}
	s.lastSampleAt = now
	s.lastSampleBytes = downloaded

	var eta time.Duration
	hasETA := false
	if s.HasTotal && s.Total > downloaded && s.lastSpeed > 0 {
		remaining := s.Total - downloaded
		eta = time.Duration(float64(remaining) / s.lastSpeed * float64(time.Second))
		hasETA = true
	}

	return Snapshot{
		ID:         s.ID,
		Filename:   s.Filename,
		Downloaded: downloaded,
		Total:      s.Total,
		HasTotal:   s.HasTotal,
		Phase:      s.phase,
		Speed:      s.lastSpeed,
		ETA:        eta,
		HasETA:     hasETA,
		Elapsed:    now.Sub(s.startTime),
	}
}

// SetTotal updates Total once it becomes known (e.g. after a probe that
// had to fall back to an unsized response), and restarts the clock that
// Snapshot reports as Elapsed. The speed samples are not reset.
func (s *State) SetTotal(total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Total = total
	s.HasTotal = true
	s.sessionStartBytes = s.Downloaded.Load()
	s.startTime = time.Now()
}

// Add records n newly-written bytes, transitioning CONNECTING to
// DOWNLOADING the first time any bytes land.
func (s *State) Add(n int64) {
	downloaded := s.Downloaded.Add(n)
	if downloaded > 0 {
		s.mu.Lock()
		if s.phase == PhaseConnecting {
			s.phase = PhaseDownloading
		}
		s.mu.Unlock()
	}
}

// SetPhase forces the phase directly, for transitions Add's byte-count
// heuristic can't see: entering FINALIZING while the sink renames the
// .part file into place, or PAUSED when a pause lands.
func (s *State) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
