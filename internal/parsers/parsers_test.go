package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWireDateWidths(t *testing.T) {
	t1, ok, err := ParseWireDate("20221115")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2022-11-15", t1.Format("2006-01-02"))

	t2, ok, err := ParseWireDate("20221115T115748Z")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2022-11-15T11:57:48Z", t2.Format("2006-01-02T15:04:05Z"))

	_, ok, err = ParseWireDate("")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseWireDate("2022-11-15")
	assert.Error(t, err)
}

func TestCLIDateToWire(t *testing.T) {
	w, err := CLIDateToWire("2022-11-15")
	require.NoError(t, err)
	assert.Equal(t, "20221115", w)

	_, err = CLIDateToWire("20221115")
	assert.Error(t, err)
}

// TestDiscoverScenarioS1 covers spec §8 scenario S1.
func TestDiscoverScenarioS1(t *testing.T) {
	body := []byte(`{
		"status": {"code": "200", "text": "OK"},
		"data": [
			{
				"identificador": "BOE-A-2015-10566",
				"titulo": "Ley de ordenamiento",
				"fecha_actualizacion": "20221115T115748Z",
				"fecha_publicacion": "20151002",
				"fecha_disposicion": "20150925",
				"url_html_consolidada": "https://example.test/boe/10566",
				"rango": {"codigo": "1300", "texto": "Ley"},
				"departamento": {"codigo": "7723", "texto": "Ministerio"},
				"ambito": {"codigo": "1", "texto": "Estatal"}
			}
		]
	}`)
	items, err := ParseDiscoverResponse(body)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "BOE-A-2015-10566", it.IDNorma)
	assert.Equal(t, "1", it.Ambito.Codigo)
	assert.Equal(t, "7723", it.Departamento.Codigo)
	require.NotNil(t, it.FechaActualizacion)
	assert.Equal(t, "2022-11-15T11:57:48.000Z", it.FechaActualizacion.Format("2006-01-02T15:04:05.000Z"))
	require.NotNil(t, it.FechaPublicacion)
	assert.Equal(t, "2015-10-02T00:00:00.000Z", it.FechaPublicacion.Format("2006-01-02T15:04:05.000Z"))
}

func TestParseDiscoverResponseBadStatus(t *testing.T) {
	body := []byte(`{"status":{"code":"500","text":"error"},"data":[]}`)
	_, err := ParseDiscoverResponse(body)
	assert.Error(t, err)
}

func TestParseIndexXMLAttributeAndChildForm(t *testing.T) {
	body := []byte(`<response><status code="200"/><data>
		<bloque id="pr" tipo="preambulo" titulo="Preambulo" url="u1" fecha_actualizacion="20200101"/>
		<bloque><id>a1</id><tipo>articulo</tipo><titulo>Articulo 1</titulo><url>u2</url><fecha_actualizacion>20210101</fecha_actualizacion></bloque>
	</data></response>`)
	doc, err := ParseIndexXML(body)
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, "pr", doc.Blocks[0].ID)
	assert.Equal(t, "a1", doc.Blocks[1].ID)
	require.NotNil(t, doc.FechaActualizacion)
	assert.Equal(t, "2021-01-01", doc.FechaActualizacion.Format("2006-01-02"))
}

func TestParseBloqueXMLPreservesRawVersionSlice(t *testing.T) {
	body := []byte(`<response><data><bloque tipo="articulo" titulo="Articulo 1">` +
		`<version id_norma="BOE-A-2020-1" fecha_vigencia="20200101" fecha_publicacion="20191231"/>` +
		`<version id_norma="" fecha_vigencia="20220601"></version>` +
		`</bloque></data></response>`)
	doc, err := ParseBloqueXML(body)
	require.NoError(t, err)
	require.Len(t, doc.Versions, 2)
	assert.Equal(t, "BOE-A-2020-1", doc.Versions[0].IDNormaModificadora)
	assert.Contains(t, string(doc.Versions[0].Raw), `fecha_vigencia="20200101"`)
	assert.Equal(t, "20220601", doc.Versions[1].FechaVigencia)
}
