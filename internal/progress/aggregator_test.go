package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_AddAndSnapshots(t *testing.T) {
	a := NewAggregator()
	a.Add(NewState("t1", "a.bin", 1000, true, 100))
	a.Add(NewState("t2", "b.bin", 2000, true, 500))

	snaps := a.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "t1", snaps[0].ID)
	assert.Equal(t, "t2", snaps[1].ID)
}

func TestAggregator_Remove(t *testing.T) {
	a := NewAggregator()
	a.Add(NewState("t1", "a.bin", 1000, true, 0))
	a.Add(NewState("t2", "b.bin", 1000, true, 0))

	a.Remove("t1")
	assert.Equal(t, 1, a.Len())
	snaps := a.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "t2", snaps[0].ID)
}

func TestAggregator_TotalSumsAcrossTasks(t *testing.T) {
	a := NewAggregator()
	a.Add(NewState("t1", "a.bin", 1000, true, 300))
	a.Add(NewState("t2", "b.bin", 2000, true, 700))

	total := a.Total()
	assert.Equal(t, int64(1000), total.Downloaded)
	assert.Equal(t, int64(3000), total.Total)
	assert.True(t, total.HasTotal)
}

func TestAggregator_TotalUnknownWhenAnyTaskSizeUnknown(t *testing.T) {
	a := NewAggregator()
	a.Add(NewState("t1", "a.bin", 1000, true, 0))
	a.Add(NewState("t2", "b.bin", 0, false, 0))

	total := a.Total()
	assert.False(t, total.HasTotal)
}

func TestAggregator_TotalEmpty(t *testing.T) {
	a := NewAggregator()
	total := a.Total()
	assert.Equal(t, int64(0), total.Downloaded)
	assert.False(t, total.HasTotal)
}

func TestAggregator_TotalPhaseIsConnectingIfAnyTaskConnecting(t *testing.T) {
	a := NewAggregator()
	a.Add(NewState("t1", "a.bin", 1000, true, 100)) // already downloading
	a.Add(NewState("t2", "b.bin", 1000, true, 0))    // still connecting

	assert.Equal(t, PhaseConnecting, a.Total().Phase)
}

func TestAggregator_TotalPhaseIsFinalizingOnlyIfAllTasksFinalizing(t *testing.T) {
	a := NewAggregator()
	s1 := NewState("t1", "a.bin", 1000, true, 100)
	s2 := NewState("t2", "b.bin", 1000, true, 100)
	a.Add(s1)
	a.Add(s2)

	s1.SetPhase(PhaseFinalizing)
	assert.Equal(t, PhaseDownloading, a.Total().Phase)

	s2.SetPhase(PhaseFinalizing)
	assert.Equal(t, PhaseFinalizing, a.Total().Phase)
}
