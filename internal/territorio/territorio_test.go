package territorio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"norma-pipeline/internal/parsers"
)

func TestResolveEstatalByAmbitoCodigo(t *testing.T) {
	r := Resolve(parsers.DiscoverItem{
		Ambito:       parsers.CodedText{Codigo: "1", Texto: "Estatal"},
		Departamento: parsers.CodedText{Codigo: "7723", Texto: "Ministerio"},
	})
	assert.Equal(t, TipoEstatal, r.Territorio.Tipo)
	assert.Equal(t, CodigoEstado, r.Territorio.Codigo)
}

func TestResolveEstatalByTextFallback(t *testing.T) {
	r := Resolve(parsers.DiscoverItem{
		Ambito: parsers.CodedText{Codigo: "9", Texto: "Ámbito Estatal"},
	})
	assert.Equal(t, TipoEstatal, r.Territorio.Tipo)
}

func TestResolveAutonomicoUsesDepartamento(t *testing.T) {
	r := Resolve(parsers.DiscoverItem{
		Ambito:       parsers.CodedText{Codigo: "6", Texto: "Autonómico"},
		Departamento: parsers.CodedText{Codigo: "CAT", Texto: "Generalitat de Catalunya"},
	})
	assert.Equal(t, TipoAutonomico, r.Territorio.Tipo)
	assert.Equal(t, "CCAA:CAT", r.Territorio.Codigo)
	assert.Equal(t, "Generalitat de Catalunya", r.Territorio.Nombre)
}

func TestResolveAutonomicoUnknownDepartamento(t *testing.T) {
	r := Resolve(parsers.DiscoverItem{
		Ambito: parsers.CodedText{Codigo: "6", Texto: "Autonómico"},
	})
	assert.Equal(t, "CCAA:UNKNOWN", r.Territorio.Codigo)
	assert.NotEmpty(t, r.Territorio.Nombre)
}
