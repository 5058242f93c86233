package chunkengine

import (
	"regexp"
	"strings"
)

var (
	runsOfSpacesTabs = regexp.MustCompile(`[ \t]+`)
	multiBlankLines  = regexp.MustCompile(`\n{3,}`)
)

const nbsp = "\u00a0"

// NormalizeWhitespace applies the chunk-text normalization pass: CR->LF,
// NBSP->space, collapsing runs of spaces/tabs within a line, trimming each
// line's edges, and collapsing consecutive blank lines (spec §4.7).
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, nbsp, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = runsOfSpacesTabs.ReplaceAllString(line, " ")
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = multiBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
