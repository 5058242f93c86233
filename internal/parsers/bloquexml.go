package parsers

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"time"
)

// VersionDescriptor is one <version> entry within a bloque XML document. Raw
// holds the exact byte slice of the <version>...</version> element as it
// appeared in the source document, so its hash is stable regardless of how
// the parser internally re-orders or re-serializes fields (spec §4.3).
type VersionDescriptor struct {
	IDNormaModificadora string
	FechaVigencia       string // raw wire token, kept verbatim for id composition
	FechaPublicacion    string
	Raw                 []byte
	Order               int
}

// BloqueDocument is the lifted view of a bloque XML document.
type BloqueDocument struct {
	Tipo     string
	Titulo   string
	Versions []VersionDescriptor
}

type bloqueWireDoc struct {
	XMLName xml.Name `xml:"response"`
	Data    struct {
		Bloque struct {
			Tipo     string `xml:"tipo,attr"`
			Titulo   string `xml:"titulo,attr"`
			Versions []struct {
				IDNormaModificadora string `xml:"id_norma,attr"`
				FechaVigencia       string `xml:"fecha_vigencia,attr"`
				FechaPublicacion    string `xml:"fecha_publicacion,attr"`
			} `xml:"version"`
		} `xml:"bloque"`
	} `xml:"data"`
}

var versionSliceRe = regexp.MustCompile(`(?s)<version\b.*?(?:/>|</version>)`)

// ParseBloqueXML parses a bloque XML document, extracting each version's raw
// XML slice by regex over the original bytes; if the regex finds fewer
// slices than the decoded version count, each version past the last slice
// gets an element rebuilt from its attributes (spec §4.3: "a rebuilt fallback if regex fails").
func ParseBloqueXML(body []byte) (BloqueDocument, error) {
	var wire bloqueWireDoc
	if err := xml.Unmarshal(body, &wire); err != nil {
		return BloqueDocument{}, fmt.Errorf("parsers: bloque xml: %w", err)
	}

	doc := BloqueDocument{
		Tipo:   wire.Data.Bloque.Tipo,
		Titulo: wire.Data.Bloque.Titulo,
	}

	rawSlices := versionSliceRe.FindAll(body, -1)

	for i, v := range wire.Data.Bloque.Versions {
		vd := VersionDescriptor{
			IDNormaModificadora: v.IDNormaModificadora,
			FechaVigencia:       v.FechaVigencia,
			FechaPublicacion:    v.FechaPublicacion,
			Order:               i,
		}
		if i < len(rawSlices) {
			vd.Raw = rawSlices[i]
		} else {
			vd.Raw = rebuildVersionXML(v.IDNormaModificadora, v.FechaVigencia, v.FechaPublicacion)
		}
		doc.Versions = append(doc.Versions, vd)
	}
	return doc, nil
}

func rebuildVersionXML(idNormaModificadora, fechaVigencia, fechaPublicacion string) []byte {
	type rebuilt struct {
		XMLName             xml.Name `xml:"version"`
		IDNormaModificadora string   `xml:"id_norma,attr,omitempty"`
		FechaVigencia       string   `xml:"fecha_vigencia,attr,omitempty"`
		FechaPublicacion    string   `xml:"fecha_publicacion,attr,omitempty"`
	}
	b, err := xml.Marshal(rebuilt{
		IDNormaModificadora: idNormaModificadora,
		FechaVigencia:       fechaVigencia,
		FechaPublicacion:    fechaPublicacion,
	})
	if err != nil {
		return []byte(fmt.Sprintf("<version id_norma=%q fecha_vigencia=%q fecha_publicacion=%q/>",
			idNormaModificadora, fechaVigencia, fechaPublicacion))
	}
	return b
}

// ParseVigenciaDate is a convenience wrapper for callers that need the typed
// time value of a version's vigencia token without losing the raw string
// used for id composition.
func ParseVigenciaDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, ok, err := ParseWireDate(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &t, nil
}
