package parsers

import (
	"encoding/xml"
	"fmt"
	"time"
)

// BlockDescriptor is one ordered entry from an index XML document (spec §4.3).
type BlockDescriptor struct {
	ID                 string
	Tipo               string
	Titulo             string
	URL                string
	FechaActualizacion *time.Time
	Order              int
}

// IndexDocument is the lifted view of a full index XML response.
type IndexDocument struct {
	StatusCode         string
	Blocks             []BlockDescriptor
	FechaActualizacion *time.Time // max of block timestamps
}

// wire shapes tolerate both attribute-form and child-form id/type/title/url,
// per spec §4.3.
type indexWire struct {
	XMLName xml.Name `xml:"response"`
	Status  struct {
		Code string `xml:"code,attr"`
	} `xml:"status"`
	Data struct {
		Bloques []bloqueWire `xml:"bloque"`
	} `xml:"data"`
}

type bloqueWire struct {
	IDAttr     string `xml:"id,attr"`
	ID         string `xml:"id"`
	TipoAttr   string `xml:"tipo,attr"`
	Tipo       string `xml:"tipo"`
	TituloAttr string `xml:"titulo,attr"`
	Titulo     string `xml:"titulo"`
	URLAttr    string `xml:"url,attr"`
	URL        string `xml:"url"`
	FechaAttr  string `xml:"fecha_actualizacion,attr"`
	Fecha      string `xml:"fecha_actualizacion"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseIndexXML parses an index XML document into an IndexDocument. The
// document's FechaActualizacion is the max of all block timestamps, per
// spec §4.3.
func ParseIndexXML(body []byte) (IndexDocument, error) {
	var wire indexWire
	if err := xml.Unmarshal(body, &wire); err != nil {
		return IndexDocument{}, fmt.Errorf("parsers: index xml: %w", err)
	}
	if wire.Status.Code != "" && wire.Status.Code != "200" {
		return IndexDocument{}, fmt.Errorf("parsers: index xml status %s", wire.Status.Code)
	}

	doc := IndexDocument{StatusCode: wire.Status.Code}
	var maxFecha *time.Time
	for i, b := range wire.Data.Bloques {
		id := firstNonEmpty(b.IDAttr, b.ID)
		tipo := firstNonEmpty(b.TipoAttr, b.Tipo)
		titulo := firstNonEmpty(b.TituloAttr, b.Titulo)
		url := firstNonEmpty(b.URLAttr, b.URL)
		fechaRaw := firstNonEmpty(b.FechaAttr, b.Fecha)

		bd := BlockDescriptor{ID: id, Tipo: tipo, Titulo: titulo, URL: url, Order: i}
		if fechaRaw != "" {
			t, ok, err := ParseWireDate(fechaRaw)
			if err != nil {
				return IndexDocument{}, err
			}
			if ok {
				bd.FechaActualizacion = &t
				if maxFecha == nil || t.After(*maxFecha) {
					maxFecha = &t
				}
			}
		}
		doc.Blocks = append(doc.Blocks, bd)
	}
	doc.FechaActualizacion = maxFecha
	return doc, nil
}
