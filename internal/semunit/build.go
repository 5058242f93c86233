package semunit

import (
	"sort"
	"strings"

	"norma-pipeline/internal/ids"
	"norma-pipeline/internal/parsers"
)

// UnitDraft is one candidate semantic unit produced for a single (root,
// anchor) pair, before persistence.
type UnitDraft struct {
	IDUnidad            string
	IDNorma             string
	UnidadTipo          UnidadTipo
	UnidadRef           string
	LineageKey          string
	Titulo              string
	Orden               int
	VigenciaDesdeRaw    string // wire date token, "" if unknown
	IDNormaModificadora string
	Publication         string // wire date token of the selected root version
	Texto               string
	TextoHash           string
	IsHeadingOnly       bool
	FilterReason        FilterReason
	BloquesOrigen       []string
	VersionHashes       []string
}

// BuildUnits runs the full semantic unit builder for one norm: classify
// blocks, assemble the tree, enumerate root/anchor pairs, select versions,
// compose text, and filter (spec §4.5).
func BuildUnits(idNorma string, blocks []parsers.BlockDescriptor, versionsByBlock map[string][]parsers.VersionDescriptor, extract parsers.TextExtractor) []UnitDraft {
	tree := BuildTree(blocks)
	var drafts []UnitDraft

	for _, rootID := range tree.RootCandidates() {
		subtree := tree.Subtree(rootID)
		if len(subtree) == 0 {
			continue
		}
		rootNode := tree.Nodes[rootID]

		anchors := AnchorSet(rootID, subtree, versionsByBlock)
		if len(anchors) == 0 {
			anchors = []Anchor{{}}
		}

		for _, anchor := range anchors {
			drafts = append(drafts, buildOne(idNorma, rootNode, subtree, anchor, versionsByBlock, extract)...)
		}
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		if drafts[i].Orden != drafts[j].Orden {
			return drafts[i].Orden < drafts[j].Orden
		}
		return drafts[i].VigenciaDesdeRaw < drafts[j].VigenciaDesdeRaw
	})
	return drafts
}

func buildOne(idNorma string, rootNode *Node, subtree []string, anchor Anchor, versionsByBlock map[string][]parsers.VersionDescriptor, extract parsers.TextExtractor) []UnitDraft {
	var blockTexts []string
	var bloquesOrigen []string
	var versionHashes []string
	var firstLine, publication string
	hasChildrenWithContent := false

	for i, blockID := range subtree {
		v, ok := SelectVersion(versionsByBlock[blockID], anchor)
		var text string
		if ok {
			text = extract(v.Raw)
			bloquesOrigen = append(bloquesOrigen, blockID)
			versionHashes = append(versionHashes, ids.HashBytes(v.Raw))
			if i == 0 {
				publication = v.FechaPublicacion
			}
		}
		if i == 0 {
			firstLine = rootNode.Block.Titulo
			if firstLine == "" {
				firstLine = firstNonEmptyLine(text)
			}
		} else if strings.TrimSpace(text) != "" {
			hasChildrenWithContent = true
		}
		blockTexts = append(blockTexts, text)
	}

	composed := ComposeText(rootNode.Block.Titulo, blockTexts)
	looksNoise := rootNode.Classification.Kind == KindNoise
	decision := ShouldKeepSemanticUnit(rootNode.Classification.UnidadTipo, composed, hasChildrenWithContent, looksNoise)
	if !decision.Keep {
		return nil
	}

	ref := UnidadRef(decision.UnidadTipo, firstLine, rootNode.Block.ID)
	lineage := LineageKey(idNorma, decision.UnidadTipo, ref)
	textoHash := TextoHash(composed)
	vigenciaISO := wireDateToISO(anchor.VigenciaDesde)
	idUnidad := IDUnidad(idNorma, decision.UnidadTipo, ref, vigenciaISO, anchor.IDNormaModificadora, textoHash)

	return []UnitDraft{{
		IDUnidad:            idUnidad,
		IDNorma:             idNorma,
		UnidadTipo:          decision.UnidadTipo,
		UnidadRef:           ref,
		LineageKey:          lineage,
		Titulo:              rootNode.Block.Titulo,
		Orden:               rootNode.Order,
		VigenciaDesdeRaw:    anchor.VigenciaDesde,
		IDNormaModificadora: anchor.IDNormaModificadora,
		Publication:         publication,
		Texto:               composed,
		TextoHash:           textoHash,
		IsHeadingOnly:       IsHeadingOnly(decision.UnidadTipo, composed),
		FilterReason:        decision.Reason,
		BloquesOrigen:       bloquesOrigen,
		VersionHashes:       versionHashes,
	}}
}

func firstNonEmptyLine(text string) string {
	for _, l := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}

func wireDateToISO(raw string) string {
	t, ok, err := parsers.ParseWireDate(raw)
	if err != nil || !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

// DedupeByID keeps the first occurrence of each id_unidad, per spec §4.5
// "Per-norm post-processing" step 1.
func DedupeByID(drafts []UnitDraft) []UnitDraft {
	seen := make(map[string]bool, len(drafts))
	out := make([]UnitDraft, 0, len(drafts))
	for _, d := range drafts {
		if seen[d.IDUnidad] {
			continue
		}
		seen[d.IDUnidad] = true
		out = append(out, d)
	}
	return out
}

// ComputeLatest picks, for each lineage_key, the draft with the greatest
// (vigencia_desde, publication) pair (spec §4.5 step 2).
func ComputeLatest(drafts []UnitDraft) map[string]string {
	best := make(map[string]UnitDraft, len(drafts))
	for _, d := range drafts {
		cur, ok := best[d.LineageKey]
		if !ok || isNewerDraft(d, cur) {
			best[d.LineageKey] = d
		}
	}
	out := make(map[string]string, len(best))
	for lineage, d := range best {
		out[lineage] = d.IDUnidad
	}
	return out
}

func isNewerDraft(a, b UnitDraft) bool {
	if a.VigenciaDesdeRaw != b.VigenciaDesdeRaw {
		return a.VigenciaDesdeRaw > b.VigenciaDesdeRaw
	}
	return a.Publication > b.Publication
}
