package semunit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"norma-pipeline/internal/parsers"
)

func TestClassifyArticuloByID(t *testing.T) {
	c := Classify("a12", "articulo", "Artículo 12. Derechos")
	assert.Equal(t, TipoArticulo, c.UnidadTipo)
	assert.Equal(t, KindUnitRoot, c.Kind)
	assert.Equal(t, 4, c.Level)
}

func TestClassifyHeaderLevels(t *testing.T) {
	assert.Equal(t, 1, Classify("tI", "", "Título I. Disposiciones generales").Level)
	assert.Equal(t, 2, Classify("cII", "", "Capítulo II. Del procedimiento").Level)
	assert.Equal(t, 3, Classify("s1", "", "Sección 1ª").Level)
}

func TestClassifyNoise(t *testing.T) {
	c := Classify("fi", "", "")
	assert.Equal(t, KindNoise, c.Kind)
	c2 := Classify("x1", "", "Nota de vigencia")
	assert.Equal(t, KindNoise, c2.Kind)
}

func TestClassifyPreambulo(t *testing.T) {
	c := Classify("pr", "preambulo", "")
	assert.Equal(t, TipoPreambulo, c.UnidadTipo)
	assert.Equal(t, 1, c.Level)
}

func TestBuildTreeParentByLevel(t *testing.T) {
	blocks := []parsers.BlockDescriptor{
		{ID: "tI", Titulo: "Título I"},
		{ID: "cI", Titulo: "Capítulo I"},
		{ID: "a1", Titulo: "Artículo 1. Objeto"},
		{ID: "a2", Titulo: "Artículo 2. Ámbito"},
		{ID: "tII", Titulo: "Título II"},
		{ID: "a3", Titulo: "Artículo 3. Definiciones"},
	}
	tree := BuildTree(blocks)
	assert.Equal(t, "cI", tree.Nodes["a1"].ParentID)
	assert.Equal(t, "cI", tree.Nodes["a2"].ParentID)
	assert.Equal(t, "tI", tree.Nodes["cI"].ParentID)
	assert.Equal(t, "", tree.Nodes["tII"].ParentID)
	assert.Equal(t, "tII", tree.Nodes["a3"].ParentID)
	assert.Equal(t, []string{"a1", "a2"}, tree.Nodes["cI"].ChildrenIDs)
}

func TestRootCandidatesExcludeHeadersRequireAllAncestorsHeader(t *testing.T) {
	blocks := []parsers.BlockDescriptor{
		{ID: "tI", Titulo: "Título I"},
		{ID: "cI", Titulo: "Capítulo I"},
		{ID: "a1", Titulo: "Artículo 1. Objeto"},
	}
	tree := BuildTree(blocks)
	roots := tree.RootCandidates()
	assert.Equal(t, []string{"a1"}, roots)
}

func TestAnchorSetDedupesAndSorts(t *testing.T) {
	versions := map[string][]parsers.VersionDescriptor{
		"a1": {
			{FechaVigencia: "20200101", IDNormaModificadora: ""},
			{FechaVigencia: "20190101", IDNormaModificadora: "BOE-A-2019-1"},
			{FechaVigencia: "20200101", IDNormaModificadora: ""},
		},
	}
	anchors := AnchorSet("a1", []string{"a1"}, versions)
	require.Len(t, anchors, 2)
	assert.Equal(t, "20190101", anchors[0].VigenciaDesde)
	assert.Equal(t, "20200101", anchors[1].VigenciaDesde)
}

func TestSelectVersionExactThenLatestLE(t *testing.T) {
	versions := []parsers.VersionDescriptor{
		{FechaVigencia: "20180101", FechaPublicacion: "20171201"},
		{FechaVigencia: "20200101", FechaPublicacion: "20191201"},
	}
	exact, ok := SelectVersion(versions, Anchor{VigenciaDesde: "20200101"})
	require.True(t, ok)
	assert.Equal(t, "20191201", exact.FechaPublicacion)

	le, ok := SelectVersion(versions, Anchor{VigenciaDesde: "20190101"})
	require.True(t, ok)
	assert.Equal(t, "20180101", le.FechaVigencia)

	latest, ok := SelectVersion(versions, Anchor{})
	require.True(t, ok)
	assert.Equal(t, "20200101", latest.FechaVigencia)
}

func TestComposeTextSkipsDuplicatesAndCollapsesBlankLines(t *testing.T) {
	out := ComposeText("Artículo 1", []string{"Texto base.", "Texto base.", "Texto nuevo.\n\n\n\nmás"})
	assert.Contains(t, out, "Artículo 1")
	assert.Equal(t, 1, strCount(out, "Texto base."))
	assert.NotContains(t, out, "\n\n\n")
}

func strCount(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func TestShouldKeepSemanticUnitRules(t *testing.T) {
	assert.False(t, ShouldKeepSemanticUnit(TipoArticulo, "", false, false).Keep)

	short := ShouldKeepSemanticUnit(TipoArticulo, "corto", false, false)
	assert.False(t, short.Keep)
	assert.Equal(t, ReasonTooShort, short.Reason)

	noiseShort := ShouldKeepSemanticUnit(TipoOtros, longText(300), false, true)
	assert.False(t, noiseShort.Keep)
	assert.Equal(t, ReasonNoiseFiltered, noiseShort.Reason)

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	noisePromoted := ShouldKeepSemanticUnit(TipoOtros, string(long), false, true)
	assert.True(t, noisePromoted.Keep)
	assert.Equal(t, TipoOtros, noisePromoted.UnidadTipo)
	assert.Equal(t, ReasonNoisePromoted, noisePromoted.Reason)
}

func TestUnidadRefArticulo(t *testing.T) {
	ref := UnidadRef(TipoArticulo, "Artículo 12. Derechos de los afectados", "a12")
	assert.Equal(t, "Art. 12", ref)
}

func TestUnidadRefFallsBackToBlockID(t *testing.T) {
	ref := UnidadRef(TipoOtros, "texto sin patrón reconocible", "x9")
	assert.Equal(t, "X9", ref)
}

func TestIsHeadingOnlyDetectsBareHeader(t *testing.T) {
	assert.True(t, IsHeadingOnly(TipoArticulo, "Artículo 12. Derechos de los afectados"))
}

func TestIsHeadingOnlyFalseWithApartados(t *testing.T) {
	text := "Artículo 12. Derechos\n\n1. Primer derecho extenso que ocupa contenido real.\n2. Segundo derecho."
	assert.False(t, IsHeadingOnly(TipoArticulo, text))
}

func longText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestBuildUnitsEndToEnd(t *testing.T) {
	blocks := []parsers.BlockDescriptor{
		{ID: "tI", Titulo: "Título I"},
		{ID: "a1", Titulo: "Artículo 1. Objeto"},
	}
	versions := map[string][]parsers.VersionDescriptor{
		"a1": {
			{FechaVigencia: "20200101", FechaPublicacion: "20191201", Raw: []byte("<p>" + longText(250) + "</p>")},
		},
	}
	extract := func(raw []byte) string { return string(raw) }
	drafts := BuildUnits("BOE-A-1", blocks, versions, parsers.TextExtractor(func(b []byte) string {
		return extract(b)
	}))
	require.Len(t, drafts, 1)
	assert.Equal(t, TipoArticulo, drafts[0].UnidadTipo)
	assert.Equal(t, "Art. 1", drafts[0].UnidadRef)
	assert.NotEmpty(t, drafts[0].IDUnidad)
}

func TestComputeLatestPicksGreatestVigencia(t *testing.T) {
	drafts := []UnitDraft{
		{IDUnidad: "u1", LineageKey: "l1", VigenciaDesdeRaw: "20190101"},
		{IDUnidad: "u2", LineageKey: "l1", VigenciaDesdeRaw: "20200101"},
	}
	latest := ComputeLatest(drafts)
	assert.Equal(t, "u2", latest["l1"])
}

func TestDedupeByIDKeepsFirst(t *testing.T) {
	drafts := []UnitDraft{{IDUnidad: "u1", Texto: "a"}, {IDUnidad: "u1", Texto: "b"}}
	out := DedupeByID(drafts)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Texto)
}
