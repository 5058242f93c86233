// Package territorio derives the geographic scope of a norm from its raw
// discover JSON fields, per spec §4.4.
package territorio

import (
	"regexp"
	"strings"

	"norma-pipeline/internal/parsers"
)

const (
	TipoEstatal    = "ESTATAL"
	TipoAutonomico = "AUTONOMICO"

	CodigoEstado = "ES:STATE"
)

// Territorio is the resolved geographic scope value object.
type Territorio struct {
	Tipo   string
	Codigo string
	Nombre string
}

// Resolution is the full output of Resolve: the territorio plus the two
// upstream codes used elsewhere in the pipeline (spec §3 Norma attributes).
type Resolution struct {
	AmbitoCodigo       string
	DepartamentoCodigo string
	Territorio         Territorio
}

var estatalRe = regexp.MustCompile(`(?i)estatal`)

// Resolve implements spec §4.4's rule: ambito.codigo == "1", or the domain
// text matching /estatal/i, means ESTATAL with the fixed ES:STATE code;
// otherwise AUTONOMICO keyed by the department code (or UNKNOWN).
func Resolve(item parsers.DiscoverItem) Resolution {
	ambitoCodigo := item.Ambito.Codigo
	deptCodigo := item.Departamento.Codigo

	isEstatal := ambitoCodigo == "1" || estatalRe.MatchString(item.Ambito.Texto) || estatalRe.MatchString(item.Rango.Texto)

	if isEstatal {
		return Resolution{
			AmbitoCodigo:       ambitoCodigo,
			DepartamentoCodigo: deptCodigo,
			Territorio: Territorio{
				Tipo:   TipoEstatal,
				Codigo: CodigoEstado,
				Nombre: "Estado",
			},
		}
	}

	dept := deptCodigo
	if dept == "" {
		dept = "UNKNOWN"
	}
	nombre := strings.TrimSpace(item.Departamento.Texto)
	if nombre == "" {
		nombre = "Comunidad Autónoma desconocida"
	}
	return Resolution{
		AmbitoCodigo:       ambitoCodigo,
		DepartamentoCodigo: deptCodigo,
		Territorio: Territorio{
			Tipo:   TipoAutonomico,
			Codigo: "CCAA:" + dept,
			Nombre: nombre,
		},
	}
}
