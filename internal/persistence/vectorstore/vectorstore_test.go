package vectorstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointUUIDIsDeterministicAndValid(t *testing.T) {
	u1 := PointUUID("chunk-abc")
	u2 := PointUUID("chunk-abc")
	assert.Equal(t, u1, u2)

	_, err := uuid.Parse(u1)
	require.NoError(t, err)

	assert.NotEqual(t, u1, PointUUID("chunk-def"))
}

func TestToVigenciaHastaMsSentinel(t *testing.T) {
	assert.Equal(t, SentinelHastaMs, ToVigenciaHastaMs(nil))
	var v int64 = 1700000000000
	assert.Equal(t, v, ToVigenciaHastaMs(&v))
}

func TestExistingPayloadUnchanged(t *testing.T) {
	p := Point{IDNorma: "n1", IDUnidad: "u1", TextoHash: "h1", ChunkingHash: "c1", VigenciaDesdeMs: 1, VigenciaHastaMs: 2}
	e := ExistingPayload{IDNorma: "n1", IDUnidad: "u1", TextoHash: "h1", ChunkingHash: "c1", VigenciaDesdeMs: 1, VigenciaHastaMs: 2}
	assert.True(t, e.Unchanged(p))

	e.TextoHash = "different"
	assert.False(t, e.Unchanged(p))
}

func TestPointFromPayloadRoundTrips(t *testing.T) {
	p := Point{
		ChunkID: "c1", IDNorma: "n1", IDUnidad: "u1", UnidadTipo: "ARTICULO", UnidadRef: "20",
		Titulo: "De la calidad", TerritorioCodigo: "ES:STATE", TerritorioTipo: "ESTATAL",
		TerritorioNombre: "Estado", VigenciaDesdeMs: 100, VigenciaHastaMs: SentinelHastaMs,
		URLConsolidated: "https://boe.es/x", URLEli: "https://eli/x", Tags: []string{"nota_inicial"},
		Text: "texto del articulo", TextoHash: "h1", ChunkingHash: "ch1",
	}
	payload := payloadMap(p)
	qpayload := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		qpayload[k] = qdrant.NewValue(v)
	}

	got := pointFromPayload(qpayload)
	assert.Equal(t, p, got)
}
