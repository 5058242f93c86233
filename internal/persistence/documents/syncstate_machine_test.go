package documents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkStageStartResetsDownstream(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := NewPendingSyncState("BOE-A-2015-10566", now)
	s.MarkStageSuccess(StageSync, now)
	s.MarkStageSuccess(StageBuildUnits, now)
	require.Equal(t, StatusOK, s.Stages[StageBuildUnits].Status)

	later := now.Add(time.Hour)
	s.MarkStageStart(StageBuildUnits, later)
	assert.Equal(t, StatusRunning, s.Stages[StageBuildUnits].Status)
	assert.Equal(t, StatusPending, s.Stages[StageBuildChunks].Status)
	assert.Equal(t, StatusPending, s.Stages[StageIndex].Status)
	assert.Equal(t, 1, s.Stages[StageBuildUnits].Attempts)
}

func TestMarkStageSuccessIndexCompletesRollup(t *testing.T) {
	now := time.Now().UTC()
	s := NewPendingSyncState("n1", now)
	for _, st := range stageOrder {
		s.MarkStageStart(st, now)
		s.MarkStageSuccess(st, now)
	}
	assert.Equal(t, StatusOK, s.Status)
}

func TestMarkStageFailureWinsRollup(t *testing.T) {
	now := time.Now().UTC()
	s := NewPendingSyncState("n1", now)
	s.MarkStageStart(StageSync, now)
	s.MarkStageSuccess(StageSync, now)
	s.MarkStageStart(StageBuildUnits, now)
	s.MarkStageFailure(StageBuildUnits, "boom", now)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "boom", s.LastErrorMessage)
}

func TestCoerceLegacyStatus(t *testing.T) {
	assert.Equal(t, StatusFailed, CoerceLegacyStatus("error"))
	assert.Equal(t, StatusOK, CoerceLegacyStatus("ok"))
	assert.Equal(t, StatusFailed, CoerceLegacyStatus("whatever-unknown"))
}

func TestMarkStageSuccessNonIndexResetsDownstreamAndRollsUpPending(t *testing.T) {
	now := time.Now().UTC()
	s := NewPendingSyncState("n1", now)
	s.MarkStageStart(StageSync, now)
	s.MarkStageSuccess(StageSync, now)
	assert.Equal(t, StatusPending, s.Status)
}
