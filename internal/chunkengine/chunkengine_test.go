package chunkengine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArticleBypassesSplitterWhenShort(t *testing.T) {
	text := "Articulo 1. Texto breve."
	chunks := Split(text, "ARTICULO", Options{Method: MethodSimple, Size: 1000, Overlap: 100})
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestSimpleSplitSlidingWindow(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks := Split(text, "ANEXO", Options{Method: MethodSimple, Size: 10, Overlap: 2})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 10)
	}
}

func TestSimpleSplitEmptyInput(t *testing.T) {
	chunks := Split("", "ANEXO", Options{Method: MethodSimple, Size: 10, Overlap: 2})
	assert.Empty(t, chunks)
}

func TestRecursiveSplitAccumulatesParagraphs(t *testing.T) {
	text := "Para uno.\n\nPara dos.\n\nPara tres que es mas largo para forzar un corte nuevo aqui."
	chunks := Split(text, "ANEXO", Options{Method: MethodRecursive, Size: 40, Overlap: 5})
	require.NotEmpty(t, chunks)
	for _, c := range chunks[1:] {
		assert.NotEmpty(t, c.Text)
	}
}

func TestRecursiveSplitFallsBackToSimpleForOversizedParagraph(t *testing.T) {
	text := strings.Repeat("b", 100)
	chunks := Split(text, "ANEXO", Options{Method: MethodRecursive, Size: 20, Overlap: 0})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 20)
	}
}

func TestOptionsHashStable(t *testing.T) {
	a := Options{Method: MethodSimple, Size: 500, Overlap: 50}.Hash()
	b := Options{Method: MethodSimple, Size: 500, Overlap: 50}.Hash()
	assert.Equal(t, a, b)
	c := Options{Method: MethodRecursive, Size: 500, Overlap: 50}.Hash()
	assert.NotEqual(t, a, c)
}

func TestNormalizeWhitespaceCollapsesAndTrims(t *testing.T) {
	in := "Linea uno  \r\ncon espacio\n\n\n\nLinea dos   con   tabs\t\t\n"
	out := NormalizeWhitespace(in)
	for _, line := range strings.Split(out, "\n") {
		assert.False(t, strings.Contains(line, "  "), "line retains a double space: %q", line)
	}
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "\n\n\n")
}

func TestIsHeadingOnlyChunkDropsBareArticleHeader(t *testing.T) {
	assert.True(t, IsHeadingOnlyChunk("Articulo 5", "ARTICULO"))
	assert.True(t, IsHeadingOnlyChunk("Articulo 5\nDefiniciones generales", "ARTICULO"))
}

func TestIsHeadingOnlyChunkKeepsSubstantiveText(t *testing.T) {
	assert.False(t, IsHeadingOnlyChunk("1. Esta disposicion regula el procedimiento administrativo aplicable a los supuestos descritos en el apartado anterior.", "ARTICULO"))
}

func TestIsHeadingOnlyChunkDropsRepeatedNumberAndRubric(t *testing.T) {
	assert.True(t, IsHeadingOnlyChunk("Articulo 20\n\nArticulo 20. De la calidad del sistema.", "ARTICULO"))
}
