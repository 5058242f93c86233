package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobIDIsDeterministicPerStageAndNorm(t *testing.T) {
	a := JobID(StageSync, "BOE-A-2015-10566")
	b := JobID(StageSync, "BOE-A-2015-10566")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, JobID(StageBuildUnits, "BOE-A-2015-10566"))
	assert.NotEqual(t, a, JobID(StageSync, "BOE-A-2020-1"))
}

func TestStageQueueGroupsBuildStages(t *testing.T) {
	assert.Equal(t, "q-sync", StageSync.Queue())
	assert.Equal(t, "q-build", StageBuildUnits.Queue())
	assert.Equal(t, "q-build", StageBuildChunks.Queue())
	assert.Equal(t, "q-index", StageIndex.Queue())
	assert.Equal(t, "q-orchestrator", StageOrchestrator.Queue())
}

func TestStagesFromReturnsDownstreamChain(t *testing.T) {
	assert.Equal(t, []Stage{StageSync, StageBuildUnits, StageBuildChunks, StageIndex}, stagesFrom(StageSync))
	assert.Equal(t, []Stage{StageBuildChunks, StageIndex}, stagesFrom(StageBuildChunks))
	assert.Nil(t, stagesFrom(StageOrchestrator))
}
