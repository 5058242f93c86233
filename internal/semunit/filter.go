package semunit

// FilterReason names why a candidate unit was kept or dropped.
type FilterReason string

const (
	ReasonEmptyText     FilterReason = "empty_text"
	ReasonTooShort      FilterReason = "too_short"
	ReasonNoiseFiltered FilterReason = "noise_filtered"
	ReasonNoisePromoted FilterReason = "noise_promoted_to_otros"
	ReasonOK            FilterReason = "ok"
)

// FilterDecision is the outcome of ShouldKeepSemanticUnit.
type FilterDecision struct {
	Keep       bool
	UnidadTipo UnidadTipo
	Reason     FilterReason
}

const minSubstantiveChars = 200
const minNoisePromotionChars = 500

// ShouldKeepSemanticUnit decides whether a candidate unit survives, and
// under which type, per spec §4.5 "Filter decision".
func ShouldKeepSemanticUnit(unidadTipo UnidadTipo, text string, hasChildrenWithContent, looksNoise bool) FilterDecision {
	if text == "" {
		return FilterDecision{UnidadTipo: unidadTipo, Reason: ReasonEmptyText}
	}
	length := len([]rune(text))
	if length < minSubstantiveChars && !hasChildrenWithContent {
		return FilterDecision{UnidadTipo: unidadTipo, Reason: ReasonTooShort}
	}
	if looksNoise {
		if length >= minNoisePromotionChars {
			return FilterDecision{Keep: true, UnidadTipo: TipoOtros, Reason: ReasonNoisePromoted}
		}
		return FilterDecision{UnidadTipo: unidadTipo, Reason: ReasonNoiseFiltered}
	}
	return FilterDecision{Keep: true, UnidadTipo: unidadTipo, Reason: ReasonOK}
}
