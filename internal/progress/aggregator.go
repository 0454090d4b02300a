package progress

import (
	"sync"
	"time"
)

// Aggregator tracks every currently-active task's State and can report
// a combined total, matching the bookkeeping style of a worker pool's
// active-downloads map but keyed for progress instead of scheduling.
type Aggregator struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*State
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byID: make(map[string]*State)}
}

// Add registers a task's State, replacing any prior entry for the same
// ID. Tasks are reported in the order they were first added.
func (a *Aggregator) Add(s *State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.byID[s.ID]; !exists {
		a.order = append(a.order, s.ID)
	}
	a.byID[s.ID] = s
}

// Remove drops a task from the aggregate, e.g. once it completes or is
// archived.
func (a *Aggregator) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.byID[id]; !exists {
		return
	}
	delete(a.byID, id)
	for i, existing := range a.order {
		if existing == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Snapshots returns a per-task snapshot for every active task, in
// insertion order.
func (a *Aggregator) Snapshots() []Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Snapshot, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id].Snapshot())
	}
	return out
}

// Total sums every active task's snapshot into one combined view. Total
// size is only reported if every active task has a known total;
// otherwise it's reported as unknown rather than silently understating
// the true total. The aggregate phase is CONNECTING if any task is
// CONNECTING, FINALIZING if every task is FINALIZING, DOWNLOADING
// otherwise.
func (a *Aggregator) Total() Snapshot {
	snapshots := a.Snapshots()

	total := Snapshot{HasTotal: len(snapshots) > 0, Phase: PhaseDownloading}
	if len(snapshots) == 0 {
		return total
	}

	hasConnecting := false
	allFinalizing := true
	for _, s := range snapshots {
		total.Downloaded += s.Downloaded
		total.Speed += s.Speed
		if !s.HasTotal {
			total.HasTotal = false
		}
		if s.HasTotal {
			total.Total += s.Total
		}
		if s.Elapsed > total.Elapsed {
			total.Elapsed = s.Elapsed
		}
		if s.Phase == PhaseConnecting {
			hasConnecting = true
		}
		if s.Phase != PhaseFinalizing {
			allFinalizing = false
		}
	}

	switch {
	case hasConnecting:
		total.Phase = PhaseConnecting
	case allFinalizing:
		total.Phase = PhaseFinalizing
	}

	if total.HasTotal && total.Total > total.Downloaded && total.Speed > 0 {
		remaining := total.Total - total.Downloaded
		total.ETA = time.Duration(float64(remaining) / total.Speed * float64(time.Second))
		total.HasETA = true
	}

	return total
}

// Len reports how many tasks are currently tracked.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}
