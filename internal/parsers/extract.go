package parsers

import (
	"regexp"
	"strings"
)

// TextExtractor turns one version's raw XML slice into plain text. Two
// implementations exist because their outputs are not bit-identical, which
// feeds into id composition (spec §4.3, §9 open question on
// extractor-dependent hashing): the chosen extractor is part of a norm's
// configuration, not just a rendering detail.
type TextExtractor func(raw []byte) string

var (
	blockTagRe   = regexp.MustCompile(`(?i)</(p|li|div|ol|ul|h[1-6]|br)\s*>`)
	selfCloseBR  = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTagRe     = regexp.MustCompile(`<[^>]*>`)
	entityAmpRe  = regexp.MustCompile(`&amp;`)
	entityLtRe   = regexp.MustCompile(`&lt;`)
	entityGtRe   = regexp.MustCompile(`&gt;`)
	entityNbspRe = regexp.MustCompile(`&nbsp;`)
	entityAposRe = regexp.MustCompile(`&apos;|&#39;`)
	entityQuotRe = regexp.MustCompile(`&quot;`)
)

func decodeEntities(s string) string {
	s = entityNbspRe.ReplaceAllString(s, " ")
	s = entityAposRe.ReplaceAllString(s, "'")
	s = entityQuotRe.ReplaceAllString(s, "\"")
	s = entityLtRe.ReplaceAllString(s, "<")
	s = entityGtRe.ReplaceAllString(s, ">")
	s = entityAmpRe.ReplaceAllString(s, "&")
	return s
}

// ExtractFastXML inserts a newline at the close of block-level elements
// before stripping tags, preserving paragraph structure.
func ExtractFastXML(raw []byte) string {
	s := string(raw)
	s = selfCloseBR.ReplaceAllString(s, "\n")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = decodeEntities(s)
	return strings.TrimSpace(s)
}

// ExtractXPath strips every tag uniformly, joining content with a single
// newline per element boundary regardless of its block/inline role.
func ExtractXPath(raw []byte) string {
	s := string(raw)
	s = anyTagRe.ReplaceAllString(s, "\n")
	s = decodeEntities(s)
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, "\n")
}
