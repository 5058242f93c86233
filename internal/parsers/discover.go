package parsers

import (
	"encoding/json"
	"fmt"
	"time"
)

// CodedText is the recurring {codigo, texto} pair used by rank/department/
// domain/ambito fields in the discover API payload.
type CodedText struct {
	Codigo string
	Texto  string
}

// DiscoverItem is the lifted, typed view of one discover API result item
// (spec §4.3, §6). Date fields are nil when absent; a date token of any
// other width makes ParseDiscoverResponse fail.
type DiscoverItem struct {
	IDNorma            string
	Titulo             string
	Rango              CodedText
	Departamento       CodedText
	Ambito             CodedText
	FechaActualizacion *time.Time
	FechaPublicacion   *time.Time
	FechaDisposicion   *time.Time
	URLConsolidated    string
	RawJSON            json.RawMessage
}

// discoverItemWire is the loose JSON shape; it is never exposed outside this
// file (spec §9 "narrow ingestion boundary").
type discoverItemWire struct {
	Identificador        string        `json:"identificador"`
	Titulo               string        `json:"titulo"`
	FechaActualizacion   string        `json:"fecha_actualizacion"`
	FechaPublicacion     string        `json:"fecha_publicacion"`
	FechaDisposicion     string        `json:"fecha_disposicion"`
	URLHTMLConsolidada   string        `json:"url_html_consolidada"`
	Rango                codedTextWire `json:"rango"`
	Departamento         codedTextWire `json:"departamento"`
	Ambito               codedTextWire `json:"ambito"`
}

type codedTextWire struct {
	Codigo string `json:"codigo"`
	Texto  string `json:"texto"`
}

type discoverResponseWire struct {
	Status struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"status"`
	Data []discoverItemWire `json:"data"`
}

// ParseDiscoverResponse parses the discover API's JSON body into typed
// items. A status code other than "200" is a hard integrity failure (spec §7
// "Integrity mismatch").
func ParseDiscoverResponse(body []byte) ([]DiscoverItem, error) {
	var wire discoverResponseWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parsers: discover response: %w", err)
	}
	if wire.Status.Code != "" && wire.Status.Code != "200" {
		return nil, fmt.Errorf("parsers: discover response status %s: %s", wire.Status.Code, wire.Status.Text)
	}

	items := make([]DiscoverItem, 0, len(wire.Data))
	for _, w := range wire.Data {
		raw, _ := json.Marshal(w)
		item := DiscoverItem{
			IDNorma:         w.Identificador,
			Titulo:          w.Titulo,
			Rango:           CodedText(w.Rango),
			Departamento:    CodedText(w.Departamento),
			Ambito:          CodedText(w.Ambito),
			URLConsolidated: w.URLHTMLConsolidada,
			RawJSON:         raw,
		}
		if t, ok, err := ParseWireDate(w.FechaActualizacion); err != nil {
			return nil, err
		} else if ok {
			item.FechaActualizacion = &t
		}
		if t, ok, err := ParseWireDate(w.FechaPublicacion); err != nil {
			return nil, err
		} else if ok {
			item.FechaPublicacion = &t
		}
		if t, ok, err := ParseWireDate(w.FechaDisposicion); err != nil {
			return nil, err
		} else if ok {
			item.FechaDisposicion = &t
		}
		items = append(items, item)
	}
	return items, nil
}
