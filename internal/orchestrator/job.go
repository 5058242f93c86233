package orchestrator

import "time"

// Stage identifies a pipeline stage; Queue maps it to the queue its jobs
// ride on, and q-build carries both build_units and build_chunks (spec §4.9).
type Stage string

const (
	StageSync        Stage = "sync"
	StageBuildUnits  Stage = "build_units"
	StageBuildChunks Stage = "build_chunks"
	StageIndex       Stage = "index"
	StageOrchestrator Stage = "orchestrator"
)

// Queue returns the Redis queue name a stage's jobs are carried on.
func (s Stage) Queue() string {
	switch s {
	case StageSync:
		return "q-sync"
	case StageBuildUnits, StageBuildChunks:
		return "q-build"
	case StageIndex:
		return "q-index"
	default:
		return "q-orchestrator"
	}
}

// Trigger names why a flow was enqueued.
type Trigger string

const (
	TriggerBackfill Trigger = "backfill"
	TriggerResume   Trigger = "resume"
)

// Job is one unit of stage work.
type Job struct {
	ID      string
	Stage   Stage
	IDNorma string
	Trigger Trigger
	Attempt int
}

// JobID builds the deterministic id that gives at-most-one in-flight job
// per (stage, norm) (spec §4.9).
func JobID(stage Stage, idNorma string) string {
	return string(stage) + "__" + idNorma
}

// JobOptions configures retry/backoff/retention for a queue.
type JobOptions struct {
	Attempts      int
	BackoffDelay  time.Duration
	KeepCompleted int // 0 = remove immediately, -1 = keep all, N = keep last N
	KeepFailed    int // 0 = remove immediately, -1 = keep all, N = keep last N
}

// DefaultJobOptions applies to q-sync, q-build, q-index.
func DefaultJobOptions() JobOptions {
	return JobOptions{Attempts: 5, BackoffDelay: time.Second, KeepCompleted: 0, KeepFailed: -1}
}

// OrchestratorJobOptions applies to q-orchestrator (seed jobs).
func OrchestratorJobOptions() JobOptions {
	return JobOptions{Attempts: 3, BackoffDelay: time.Second, KeepCompleted: 20, KeepFailed: -1}
}

// stageOrder is the norm flow's chain, rooted at sync.
var stageOrder = []Stage{StageSync, StageBuildUnits, StageBuildChunks, StageIndex}

// stagesFrom returns the chain subset from startFromStage upward.
func stagesFrom(start Stage) []Stage {
	for i, s := range stageOrder {
		if s == start {
			return stageOrder[i:]
		}
	}
	return nil
}
