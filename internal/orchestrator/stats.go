package orchestrator

import (
	"sync"
	"time"
)

// StageCounts is one stage's rolling-window throughput.
type StageCounts struct {
	Completed int
	Failed    int
}

// StatsTracker accumulates per-stage completed/failed events with
// timestamps, so a caller can ask for a rolling window snapshot (spec §6
// "the orchestrator's stats command prints a snapshot of stage throughput").
// It is process-local: restarting a worker resets its history.
type StatsTracker struct {
	mu     sync.Mutex
	events map[Stage][]statEvent
}

type statEvent struct {
	at     time.Time
	failed bool
}

// NewStatsTracker builds an empty tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{events: make(map[Stage][]statEvent)}
}

// RecordCompleted logs a successful job finishing for stage.
func (t *StatsTracker) RecordCompleted(stage Stage, at time.Time) {
	t.record(stage, at, false)
}

// RecordFailed logs a terminal job failure for stage.
func (t *StatsTracker) RecordFailed(stage Stage, at time.Time) {
	t.record(stage, at, true)
}

func (t *StatsTracker) record(stage Stage, at time.Time, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[stage] = append(t.events[stage], statEvent{at: at, failed: failed})
}

// Snapshot returns each stage's completed/failed counts within the last
// window, pruning events older than window from the tracker as a side
// effect so memory does not grow unbounded.
func (t *StatsTracker) Snapshot(now time.Time, window time.Duration) map[Stage]StageCounts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := now.Add(-window)
	out := make(map[Stage]StageCounts, len(t.events))
	for stage, events := range t.events {
		kept := events[:0:0]
		var counts StageCounts
		for _, e := range events {
			if e.at.Before(cutoff) {
				continue
			}
			kept = append(kept, e)
			if e.failed {
				counts.Failed++
			} else {
				counts.Completed++
			}
		}
		t.events[stage] = kept
		out[stage] = counts
	}
	return out
}
