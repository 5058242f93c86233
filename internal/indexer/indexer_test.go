package indexer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"norma-pipeline/internal/persistence/documents"
	"norma-pipeline/internal/vigencia"
)

func TestBuildPointCarriesMetadataSnapshot(t *testing.T) {
	c := documents.ChunkSemantico{
		IDChunk:      "chunk-1",
		IDNorma:      "n1",
		IDUnidad:     "u1",
		Texto:        "texto",
		TextoHash:    "h1",
		ChunkingHash: "ch1",
		Metadata: documents.UnidadMetadata{
			TerritorioCodigo: "ES:STATE",
			TerritorioTipo:   "ESTATAL",
			Tags:             []string{"nota_inicial"},
		},
	}
	p := buildPoint(c)
	assert.Equal(t, "chunk-1", p.ChunkID)
	assert.Equal(t, "ES:STATE", p.TerritorioCodigo)
	assert.Equal(t, []string{"nota_inicial"}, p.Tags)
	assert.Equal(t, "h1", p.TextoHash)
}

func TestBuildPointCarriesUnidadIdentityAndVigencia(t *testing.T) {
	desde := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c := documents.ChunkSemantico{
		IDChunk:            "chunk-2",
		IDNorma:            "n1",
		IDUnidad:           "u1",
		UnidadTipo:         "ARTICULO",
		UnidadRef:          "art-20",
		Titulo:             "Articulo 20",
		FechaVigenciaDesde: &desde,
		FechaVigenciaHasta: nil,
		Texto:              "texto",
		TextoHash:          "h2",
		ChunkingHash:       "ch1",
	}
	p := buildPoint(c)
	assert.Equal(t, "ARTICULO", p.UnidadTipo)
	assert.Equal(t, "art-20", p.UnidadRef)
	assert.Equal(t, "Articulo 20", p.Titulo)
	assert.Equal(t, desde.UnixMilli(), p.VigenciaDesdeMs)
	assert.Equal(t, vigencia.SentinelHastaMs, p.VigenciaHastaMs)
}
