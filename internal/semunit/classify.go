// Package semunit builds versioned semantic retrieval units (articles,
// dispositions, annexes, preamble) out of a norm's index-block tree and its
// set of block-versions (spec §4.5).
package semunit

import "regexp"

// Kind is the structural role of an index block.
type Kind string

const (
	KindUnitRoot Kind = "UNIT_ROOT"
	KindHeader   Kind = "HEADER"
	KindNoise    Kind = "NOISE"
	KindOther    Kind = "OTHER"
)

// UnidadTipo is the retrieval unit's domain type.
type UnidadTipo string

const (
	TipoArticulo               UnidadTipo = "ARTICULO"
	TipoDisposicionAdicional   UnidadTipo = "DISPOSICION_ADICIONAL"
	TipoDisposicionTransitoria UnidadTipo = "DISPOSICION_TRANSITORIA"
	TipoDisposicionFinal       UnidadTipo = "DISPOSICION_FINAL"
	TipoAnexo                  UnidadTipo = "ANEXO"
	TipoPreambulo              UnidadTipo = "PREAMBULO"
	TipoOtros                  UnidadTipo = "OTROS"
)

// Classification is the result of classifying one index block.
type Classification struct {
	UnidadTipo UnidadTipo
	Kind       Kind
	Level      int
}

var (
	noiseTitleRe = regexp.MustCompile(`(?i)nota|advertencia|r[úu]brica`)

	preambleTitleRe = regexp.MustCompile(`(?i)^pre[áa]mbulo`)

	headerTipoRe      = regexp.MustCompile(`(?i)^encabezado`)
	headerTituloTitle = regexp.MustCompile(`(?i)^t[íi]tulo\b`)
	headerTituloChap  = regexp.MustCompile(`(?i)^cap[íi]tulo\b`)
	headerTituloSect  = regexp.MustCompile(`(?i)^secci[óo]n\b`)
	headerIDTitleRe   = regexp.MustCompile(`(?i)^t[ivxlcdm]+$`)
	headerIDChapRe    = regexp.MustCompile(`(?i)^c[ivxlcdm]+$`)
	headerIDSectRe    = regexp.MustCompile(`(?i)^s.*`)

	articleIDRe    = regexp.MustCompile(`(?i)^(a\d|ar-)`)
	articleTitleRe = regexp.MustCompile(`(?i)^art[íi]culo\b`)

	dispAdicionalIDRe   = regexp.MustCompile(`(?i)^da`)
	dispTransitoriaIDRe = regexp.MustCompile(`(?i)^dt`)
	dispFinalIDRe       = regexp.MustCompile(`(?i)^(df|dd)`)
	dispTitleRe         = regexp.MustCompile(`(?i)^disposici[óo]n\s+(adicional|transitoria|final|derogatoria)`)

	anexoIDRe    = regexp.MustCompile(`(?i)^(an|ax)`)
	anexoTitleRe = regexp.MustCompile(`(?i)^anexo\b`)
)

// Classify determines a block's (unidad_tipo, kind, level) from its id,
// tipo, and titulo fields (spec §4.5 "Block classification").
func Classify(id, tipo, titulo string) Classification {
	if id == "fi" || id == "no" || noiseTitleRe.MatchString(titulo) {
		return Classification{UnidadTipo: TipoOtros, Kind: KindNoise, Level: 5}
	}

	if id == "pr" || preambleTitleRe.MatchString(titulo) {
		return Classification{UnidadTipo: TipoPreambulo, Kind: KindUnitRoot, Level: 1}
	}

	if headerTipoRe.MatchString(tipo) || headerTituloTitle.MatchString(titulo) || headerIDTitleRe.MatchString(id) {
		return Classification{Kind: KindHeader, Level: 1}
	}
	if headerTituloChap.MatchString(titulo) || headerIDChapRe.MatchString(id) {
		return Classification{Kind: KindHeader, Level: 2}
	}
	if headerTituloSect.MatchString(titulo) || headerIDSectRe.MatchString(id) {
		return Classification{Kind: KindHeader, Level: 3}
	}

	if articleIDRe.MatchString(id) || articleTitleRe.MatchString(titulo) {
		return Classification{UnidadTipo: TipoArticulo, Kind: KindUnitRoot, Level: 4}
	}
	if m := dispTitleRe.FindStringSubmatch(titulo); m != nil {
		return Classification{UnidadTipo: dispTipoFromWord(m[1]), Kind: KindUnitRoot, Level: 4}
	}
	if dispAdicionalIDRe.MatchString(id) {
		return Classification{UnidadTipo: TipoDisposicionAdicional, Kind: KindUnitRoot, Level: 4}
	}
	if dispTransitoriaIDRe.MatchString(id) {
		return Classification{UnidadTipo: TipoDisposicionTransitoria, Kind: KindUnitRoot, Level: 4}
	}
	if dispFinalIDRe.MatchString(id) {
		return Classification{UnidadTipo: TipoDisposicionFinal, Kind: KindUnitRoot, Level: 4}
	}
	if anexoIDRe.MatchString(id) || anexoTitleRe.MatchString(titulo) {
		return Classification{UnidadTipo: TipoAnexo, Kind: KindUnitRoot, Level: 4}
	}

	return Classification{UnidadTipo: TipoOtros, Kind: KindOther, Level: 5}
}

func dispTipoFromWord(word string) UnidadTipo {
	switch {
	case regexp.MustCompile(`(?i)adicional`).MatchString(word):
		return TipoDisposicionAdicional
	case regexp.MustCompile(`(?i)transitoria`).MatchString(word):
		return TipoDisposicionTransitoria
	default: // final|derogatoria
		return TipoDisposicionFinal
	}
}
