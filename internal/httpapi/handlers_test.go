package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"norma-pipeline/internal/config"
	"norma-pipeline/internal/persistence/vectorstore"
)

func testServer() *Server {
	return &Server{rag: config.RAGConfig{DefaultTopK: 8, MaxTopK: 50, CandidateMultiplier: 4, MaxCandidates: 200}}
}

func TestResolveQueryDefaults(t *testing.T) {
	s := testServer()
	rq, err := s.resolveQuery(searchRequest{Query: "impuesto"})
	require.NoError(t, err)
	assert.Equal(t, modeNormativo, rq.mode)
	assert.Equal(t, 8, rq.topK)
	assert.Equal(t, float64(0), rq.minScore)
	assert.Empty(t, rq.territorioCodes)
	assert.NotContains(t, rq.unidadTipos, "PREAMBULO")
}

func TestResolveQueryRejectsShortQuery(t *testing.T) {
	s := testServer()
	_, err := s.resolveQuery(searchRequest{Query: "ab"})
	require.Error(t, err)
}

func TestResolveQueryRejectsInvalidMode(t *testing.T) {
	s := testServer()
	_, err := s.resolveQuery(searchRequest{Query: "impuesto", Mode: "BOGUS"})
	require.Error(t, err)
}

func TestResolveQueryClampsTopK(t *testing.T) {
	s := testServer()
	rq, err := s.resolveQuery(searchRequest{Query: "impuesto", TopK: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, rq.topK)
}

func TestResolveQueryAutonomicoMasEstatalRequiresCCAAPrefix(t *testing.T) {
	s := testServer()
	_, err := s.resolveQuery(searchRequest{Query: "impuesto", Scope: scopeAutonomicoMasEstatal, CCAACodigo: "7723"})
	require.Error(t, err)

	rq, err := s.resolveQuery(searchRequest{Query: "impuesto", Scope: scopeAutonomicoMasEstatal, CCAACodigo: "CCAA:7723"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CCAA:7723", "ES:STATE"}, rq.territorioCodes)
}

func TestResolveQueryEstatalForcesESState(t *testing.T) {
	s := testServer()
	rq, err := s.resolveQuery(searchRequest{Query: "impuesto", Scope: scopeEstatal, Territorio: "CCAA:7723"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ES:STATE"}, rq.territorioCodes)
}

func TestResolveQueryMixtoIncludesPreambulo(t *testing.T) {
	s := testServer()
	rq, err := s.resolveQuery(searchRequest{Query: "impuesto", Mode: modeMixto})
	require.NoError(t, err)
	assert.Contains(t, rq.unidadTipos, "PREAMBULO")
}

func TestResolveQueryIncludePreambuloFlag(t *testing.T) {
	s := testServer()
	rq, err := s.resolveQuery(searchRequest{Query: "impuesto", IncludePreambulo: true})
	require.NoError(t, err)
	assert.Contains(t, rq.unidadTipos, "PREAMBULO")
}

func TestScoreBoostVigenciaRewardsDerogatoriaAndNotaInicial(t *testing.T) {
	final := vectorstore.Point{UnidadTipo: "DISPOSICION_FINAL"}
	assert.InDelta(t, 0.08, scoreBoost(modeVigencia, final), 1e-9)

	transitoria := vectorstore.Point{UnidadTipo: "DISPOSICION_TRANSITORIA"}
	assert.InDelta(t, 0.04, scoreBoost(modeVigencia, transitoria), 1e-9)

	articuloWithTag := vectorstore.Point{UnidadTipo: "ARTICULO", Tags: []string{"nota_inicial"}}
	assert.InDelta(t, 0.12, scoreBoost(modeVigencia, articuloWithTag), 1e-9)
}

func TestScoreBoostMixtoRewardsArticulosMoreThanDispositions(t *testing.T) {
	articulo := vectorstore.Point{UnidadTipo: "ARTICULO"}
	adicional := vectorstore.Point{UnidadTipo: "DISPOSICION_ADICIONAL"}
	assert.InDelta(t, 0.03, scoreBoost(modeMixto, articulo), 1e-9)
	assert.InDelta(t, 0.02, scoreBoost(modeMixto, adicional), 1e-9)
}

func TestScoreBoostNormativoIsZero(t *testing.T) {
	final := vectorstore.Point{UnidadTipo: "DISPOSICION_FINAL", Tags: []string{"nota_inicial"}}
	assert.Equal(t, float64(0), scoreBoost(modeNormativo, final))
}

func TestCitationLabelFormat(t *testing.T) {
	p := vectorstore.Point{IDNorma: "BOE-A-2015-10566", UnidadRef: "20", VigenciaDesdeMs: 1609459200000}
	assert.Equal(t, "BOE-A-2015-10566 - 20 (vigente desde 2021-01-01)", citationLabel(p))
}
