package documents

import "time"

// Stage is one of the four pipeline stages, in their fixed pipeline order.
type Stage string

const (
	StageSync        Stage = "sync"
	StageBuildUnits  Stage = "build_units"
	StageBuildChunks Stage = "build_chunks"
	StageIndex       Stage = "index"
)

// stageOrder is the fixed pipeline order; markStageStart resets every stage
// after the one starting back to pending (spec §4.2 state machine).
var stageOrder = []Stage{StageSync, StageBuildUnits, StageBuildChunks, StageIndex}

func stagePosition(s Stage) int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// RollupStatus is a StageStatus restricted to the four values a whole-norm
// rollup can take.
type RollupStatus string

const (
	StatusPending RollupStatus = "pending"
	StatusRunning RollupStatus = "running"
	StatusOK      RollupStatus = "ok"
	StatusFailed  RollupStatus = "failed"
)

// legacyStatusAliases coerces pre-existing status strings read from storage
// to the current vocabulary (spec §4.2: "legacy status values are coerced on
// read to failed").
var legacyStatusAliases = map[string]RollupStatus{
	"error":   StatusFailed,
	"errored": StatusFailed,
	"aborted": StatusFailed,
}

// CoerceLegacyStatus maps an unrecognized stored status string to "failed";
// recognized values pass through unchanged.
func CoerceLegacyStatus(raw string) RollupStatus {
	switch RollupStatus(raw) {
	case StatusPending, StatusRunning, StatusOK, StatusFailed:
		return RollupStatus(raw)
	}
	if mapped, ok := legacyStatusAliases[raw]; ok {
		return mapped
	}
	return StatusFailed
}

// StageState is the per-stage row in a SyncState.
type StageState struct {
	Status     RollupStatus
	Attempts   int
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// SyncState is the per-norm progress record (spec §3, §4.2).
type SyncState struct {
	IDNorma          string
	Status           RollupStatus
	Stages           map[Stage]StageState
	LastErrorMessage string
	LastSeenAt       time.Time
	LastStartedAt    *time.Time
	LastFinishedAt   *time.Time
}

// NewPendingSyncState builds a fresh, all-pending state for a seeded norm.
func NewPendingSyncState(idNorma string, now time.Time) SyncState {
	stages := make(map[Stage]StageState, len(stageOrder))
	for _, s := range stageOrder {
		stages[s] = StageState{Status: StatusPending}
	}
	return SyncState{
		IDNorma:    idNorma,
		Status:     StatusPending,
		Stages:     stages,
		LastSeenAt: now,
	}
}

// ResetStages resets every named stage to pending with attempts cleared,
// implementing ensureNormaPending's forceResetStages option.
func (s *SyncState) ResetStages(stages []Stage) {
	for _, st := range stages {
		s.Stages[st] = StageState{Status: StatusPending}
	}
	s.Status = StatusPending
}

// MarkStageStart transitions a stage to running, resets every downstream
// stage to pending, and increments the stage's attempt counter.
func (s *SyncState) MarkStageStart(stage Stage, now time.Time) {
	pos := stagePosition(stage)
	cur := s.Stages[stage]
	cur.Status = StatusRunning
	cur.Attempts++
	cur.StartedAt = &now
	s.Stages[stage] = cur

	for i := pos + 1; i < len(stageOrder); i++ {
		downstream := stageOrder[i]
		ds := s.Stages[downstream]
		ds.Status = StatusPending
		s.Stages[downstream] = ds
	}

	s.Status = StatusRunning
	s.LastStartedAt = &now
	s.LastSeenAt = now
}

// MarkStageSuccess transitions a stage to ok. If it is the terminal index
// stage the rollup becomes ok; otherwise every downstream stage is reset to
// pending, per the state machine pseudocode in spec §4.2.
func (s *SyncState) MarkStageSuccess(stage Stage, now time.Time) {
	cur := s.Stages[stage]
	cur.Status = StatusOK
	cur.FinishedAt = &now
	s.Stages[stage] = cur

	if stage == StageIndex {
		s.Status = StatusOK
	} else {
		pos := stagePosition(stage)
		for i := pos + 1; i < len(stageOrder); i++ {
			downstream := stageOrder[i]
			ds := s.Stages[downstream]
			ds.Status = StatusPending
			s.Stages[downstream] = ds
		}
		s.Status = s.computeRollup()
	}
	s.LastFinishedAt = &now
	s.LastSeenAt = now
}

// MarkStageFailure transitions a stage to failed; the rollup always becomes
// failed, since a stage failure wins over any other stage's status.
func (s *SyncState) MarkStageFailure(stage Stage, errMsg string, now time.Time) {
	cur := s.Stages[stage]
	cur.Status = StatusFailed
	cur.FinishedAt = &now
	s.Stages[stage] = cur

	s.Status = StatusFailed
	s.LastErrorMessage = errMsg
	s.LastFinishedAt = &now
	s.LastSeenAt = now
}

// computeRollup derives pending|running|ok|failed from the four stage
// statuses: failed wins, then running, then ok iff every stage is ok,
// otherwise pending.
func (s *SyncState) computeRollup() RollupStatus {
	allOK := true
	anyRunning := false
	anyFailed := false
	for _, st := range stageOrder {
		switch s.Stages[st].Status {
		case StatusFailed:
			anyFailed = true
		case StatusRunning:
			anyRunning = true
			allOK = false
		case StatusPending:
			allOK = false
		}
	}
	switch {
	case anyFailed:
		return StatusFailed
	case allOK:
		return StatusOK
	case anyRunning:
		return StatusRunning
	default:
		return StatusPending
	}
}
