package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"norma-pipeline/internal/persistence/documents"
)

func TestToDocumentsStageMapsFourStages(t *testing.T) {
	cases := []struct {
		in   Stage
		want documents.Stage
	}{
		{StageSync, documents.StageSync},
		{StageBuildUnits, documents.StageBuildUnits},
		{StageBuildChunks, documents.StageBuildChunks},
		{StageIndex, documents.StageIndex},
	}
	for _, c := range cases {
		got, ok := toDocumentsStage(c.in)
		assert.True(t, ok)
		assert.Equal(t, c.want, got)
	}
}

func TestToDocumentsStageOrchestratorHasNoRow(t *testing.T) {
	_, ok := toDocumentsStage(StageOrchestrator)
	assert.False(t, ok)
}
