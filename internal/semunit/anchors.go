package semunit

import (
	"sort"

	"norma-pipeline/internal/parsers"
)

// Anchor is one (vigencia_desde, id_norma_modificadora) pair a root's
// subtree was observed to change at.
type Anchor struct {
	VigenciaDesde       string // raw wire date token, "" for unknown
	IDNormaModificadora string
}

// AnchorSet computes the deduplicated, ascending-vigencia anchor set for a
// root: the versions observed across the root block itself, or across its
// subtree if the root carries no versions of its own (spec §4.5 "Root
// selection and anchor set").
func AnchorSet(rootID string, subtree []string, versionsByBlock map[string][]parsers.VersionDescriptor) []Anchor {
	seen := make(map[Anchor]bool)
	var anchors []Anchor
	collect := func(vs []parsers.VersionDescriptor) {
		for _, v := range vs {
			a := Anchor{VigenciaDesde: v.FechaVigencia, IDNormaModificadora: v.IDNormaModificadora}
			if !seen[a] {
				seen[a] = true
				anchors = append(anchors, a)
			}
		}
	}

	if rootVersions := versionsByBlock[rootID]; len(rootVersions) > 0 {
		collect(rootVersions)
	} else {
		for _, id := range subtree {
			collect(versionsByBlock[id])
		}
	}

	sort.Slice(anchors, func(i, j int) bool {
		if anchors[i].VigenciaDesde != anchors[j].VigenciaDesde {
			return anchors[i].VigenciaDesde < anchors[j].VigenciaDesde
		}
		return anchors[i].IDNormaModificadora < anchors[j].IDNormaModificadora
	})
	return anchors
}

// SelectVersion picks the version of one block applicable at anchor, per
// spec §4.5 "Version selection for an anchor". ok is false only when the
// block carries no versions at all.
func SelectVersion(versions []parsers.VersionDescriptor, anchor Anchor) (parsers.VersionDescriptor, bool) {
	if len(versions) == 0 {
		return parsers.VersionDescriptor{}, false
	}

	for _, v := range versions {
		if v.FechaVigencia == anchor.VigenciaDesde && v.IDNormaModificadora == anchor.IDNormaModificadora {
			return v, true
		}
	}

	sorted := append([]parsers.VersionDescriptor(nil), versions...)
	sort.SliceStable(sorted, func(i, j int) bool { return versionLess(sorted[i], sorted[j]) })

	if anchor.VigenciaDesde != "" {
		var best *parsers.VersionDescriptor
		for i := range sorted {
			if sorted[i].FechaVigencia != "" && sorted[i].FechaVigencia <= anchor.VigenciaDesde {
				v := sorted[i]
				best = &v
			}
		}
		if best != nil {
			return *best, true
		}
	}

	return sorted[len(sorted)-1], true
}

func versionLess(a, b parsers.VersionDescriptor) bool {
	if a.FechaVigencia != b.FechaVigencia {
		return a.FechaVigencia < b.FechaVigencia
	}
	if a.FechaPublicacion != b.FechaPublicacion {
		return a.FechaPublicacion < b.FechaPublicacion
	}
	return a.IDNormaModificadora < b.IDNormaModificadora
}
