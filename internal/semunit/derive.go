package semunit

import (
	"regexp"
	"strings"

	"norma-pipeline/internal/ids"
)

var (
	refArticuloRe    = regexp.MustCompile(`(?i)^art[íi]culo\s+(\S+?)\.?\s*(?:[-.]|$)`)
	refAdicionalRe   = regexp.MustCompile(`(?i)^disposici[óo]n\s+adicional\s+(\S+?)\.?\s*(?:[-.]|$)`)
	refTransitoriaRe = regexp.MustCompile(`(?i)^disposici[óo]n\s+transitoria\s+(\S+?)\.?\s*(?:[-.]|$)`)
	refFinalRe       = regexp.MustCompile(`(?i)^disposici[óo]n\s+(?:final|derogatoria)\s+(\S+?)\.?\s*(?:[-.]|$)`)
	refAnexoRe       = regexp.MustCompile(`(?i)^anexo\s+(\S+?)\.?\s*(?:[-.]|$)`)
)

// UnidadRef derives the citation label for a unit from its first non-empty
// line or root title, falling back to a normalized block id when no
// type-specific pattern matches (spec §4.5 "Derived fields").
func UnidadRef(unidadTipo UnidadTipo, firstLine, blockID string) string {
	switch unidadTipo {
	case TipoArticulo:
		if m := refArticuloRe.FindStringSubmatch(firstLine); m != nil {
			return "Art. " + m[1]
		}
	case TipoDisposicionAdicional:
		if m := refAdicionalRe.FindStringSubmatch(firstLine); m != nil {
			return "Disp. adicional " + m[1]
		}
	case TipoDisposicionTransitoria:
		if m := refTransitoriaRe.FindStringSubmatch(firstLine); m != nil {
			return "Disp. transitoria " + m[1]
		}
	case TipoDisposicionFinal:
		if m := refFinalRe.FindStringSubmatch(firstLine); m != nil {
			return "Disp. final " + m[1]
		}
	case TipoAnexo:
		if m := refAnexoRe.FindStringSubmatch(firstLine); m != nil {
			return "Anexo " + m[1]
		}
	}
	return strings.ToUpper(strings.TrimSpace(blockID))
}

// LineageKey identifies a unit's position across versions, independent of
// which version is currently selected.
func LineageKey(idNorma string, unidadTipo UnidadTipo, unidadRef string) string {
	return ids.LineageKey(idNorma, string(unidadTipo), unidadRef)
}

// TextoHash hashes a unit's normalized text.
func TextoHash(normalizedText string) string {
	return ids.HashBytes([]byte(normalizedText))
}

// IDUnidad composes a unit's content-addressed identity.
func IDUnidad(idNorma string, unidadTipo UnidadTipo, unidadRef, vigenciaDesdeISO, idNormaModificadora, textoHash string) string {
	return ids.Unidad(idNorma, string(unidadTipo), unidadRef, vigenciaDesdeISO, idNormaModificadora, textoHash)
}

var (
	apartadoLineRe    = regexp.MustCompile(`^\d+\.\s`)
	incisoLineRe      = regexp.MustCompile(`^[a-z]\)\s`)
	articuloHeaderRe  = regexp.MustCompile(`(?i)^art[íi]culo\s+\S+\.?\s*$`)
	articuloShortRe   = regexp.MustCompile(`(?i)^art\.\s+\S+\.?\s*$`)
	dispHeaderRe      = regexp.MustCompile(`(?i)^disposici[óo]n\s+(adicional|transitoria|final|derogatoria)\s+\S+\.?\s*$`)
	dispShortHeaderRe = regexp.MustCompile(`(?i)^disp\.\s+\S+\s+\S+\.?\s*$`)
)

const headingOnlyMaxChars = 120

// IsHeadingOnly reports whether a unit's body is just its own header with
// no substantive content, for ARTICULO and DISPOSICION_* units only (spec
// §4.5 "Derived fields").
func IsHeadingOnly(unidadTipo UnidadTipo, text string) bool {
	switch unidadTipo {
	case TipoArticulo, TipoDisposicionAdicional, TipoDisposicionTransitoria, TipoDisposicionFinal:
	default:
		return false
	}

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		if apartadoLineRe.MatchString(l) || incisoLineRe.MatchString(l) {
			return false
		}
	}

	remainder := make([]string, 0, len(lines))
	for _, l := range lines {
		if articuloHeaderRe.MatchString(l) || articuloShortRe.MatchString(l) ||
			dispHeaderRe.MatchString(l) || dispShortHeaderRe.MatchString(l) {
			continue
		}
		remainder = append(remainder, l)
	}

	return len([]rune(strings.Join(remainder, " "))) < headingOnlyMaxChars
}
