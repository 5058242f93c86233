package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsTrackerSnapshotWindowsAndPrunes(t *testing.T) {
	tr := NewStatsTracker()
	base := time.Unix(1700000000, 0).UTC()

	tr.RecordCompleted(StageSync, base.Add(-10*time.Minute))
	tr.RecordCompleted(StageSync, base.Add(-1*time.Minute))
	tr.RecordFailed(StageSync, base.Add(-30*time.Second))

	snap := tr.Snapshot(base, 5*time.Minute)
	assert.Equal(t, StageCounts{Completed: 1, Failed: 1}, snap[StageSync])

	// events outside the window were pruned by the first Snapshot call.
	snap2 := tr.Snapshot(base, time.Hour)
	assert.Equal(t, StageCounts{Completed: 1, Failed: 1}, snap2[StageSync])
}

func TestStatsTrackerSeparatesStages(t *testing.T) {
	tr := NewStatsTracker()
	now := time.Now()
	tr.RecordCompleted(StageSync, now)
	tr.RecordCompleted(StageIndex, now)
	tr.RecordFailed(StageIndex, now)

	snap := tr.Snapshot(now, time.Minute)
	assert.Equal(t, StageCounts{Completed: 1}, snap[StageSync])
	assert.Equal(t, StageCounts{Completed: 1, Failed: 1}, snap[StageIndex])
}
