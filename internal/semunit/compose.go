package semunit

import (
	"regexp"
	"strings"

	"norma-pipeline/internal/chunkengine"
)

var threeOrMoreBlankLines = regexp.MustCompile(`\n{3,}`)

// ComposeText assembles a unit's text from an optional header followed by
// its ordered child block texts, skipping duplicate or already-contained
// blocks and collapsing long blank runs (spec §4.5 "Text composition").
func ComposeText(header string, blockTexts []string) string {
	var parts []string
	composed := ""

	header = chunkengine.NormalizeWhitespace(header)
	if header != "" {
		parts = append(parts, header)
		composed = header
	}

	for _, raw := range blockTexts {
		norm := chunkengine.NormalizeWhitespace(raw)
		if norm == "" {
			continue
		}
		if len(parts) > 0 && parts[len(parts)-1] == norm {
			continue
		}
		if composed != "" && strings.Contains(composed, norm) {
			continue
		}
		parts = append(parts, norm)
		if composed == "" {
			composed = norm
		} else {
			composed = composed + "\n\n" + norm
		}
	}

	return threeOrMoreBlankLines.ReplaceAllString(strings.Join(parts, "\n\n"), "\n\n")
}
