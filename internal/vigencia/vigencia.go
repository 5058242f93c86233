// Package vigencia derives per-lineage validity intervals and the as-of
// filter retrieval applies against them (spec §4.6).
package vigencia

import (
	"sort"
	"time"
)

// Unit is the minimal projection of a Unidad the interval derivation and
// as-of filtering need.
type Unit struct {
	IDUnidad string
	Desde    *time.Time
	Hasta    *time.Time // derived; ignored as input, populated as output
}

// DeriveIntervals sorts units by (vigencia_desde, id) with nulls-last and
// sets each one's Hasta to the next unit's Desde, leaving the last one
// open-ended (nil). Input order is not mutated; a new sorted, hasta-filled
// slice is returned.
func DeriveIntervals(units []Unit) []Unit {
	sorted := make([]Unit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessByDesdeThenID(sorted[i], sorted[j])
	})
	for i := range sorted {
		if i == len(sorted)-1 {
			sorted[i].Hasta = nil
			continue
		}
		next := sorted[i+1].Desde
		sorted[i].Hasta = next
	}
	return sorted
}

func lessByDesdeThenID(a, b Unit) bool {
	switch {
	case a.Desde == nil && b.Desde == nil:
		return a.IDUnidad < b.IDUnidad
	case a.Desde == nil:
		return false
	case b.Desde == nil:
		return true
	case !a.Desde.Equal(*b.Desde):
		return a.Desde.Before(*b.Desde)
	default:
		return a.IDUnidad < b.IDUnidad
	}
}

// IsActiveAt reports whether a unit is the active one at instant t: desde ≤
// t and (hasta is nil or t < hasta) — inclusive lower bound, strict upper.
func IsActiveAt(u Unit, t time.Time) bool {
	if u.Desde != nil && t.Before(*u.Desde) {
		return false
	}
	if u.Hasta != nil && !t.Before(*u.Hasta) {
		return false
	}
	return true
}

// FilterAsOf returns every unit in a lineage active at instant t. Since
// exactly one unit's interval can contain any instant, this is normally a
// single-element slice, but returns all matches rather than assuming it.
func FilterAsOf(units []Unit, t time.Time) []Unit {
	var out []Unit
	for _, u := range units {
		if IsActiveAt(u, t) {
			out = append(out, u)
		}
	}
	return out
}

// SentinelHastaMs is the "null hasta" sentinel mirrored into the vector
// store payload: the maximum representable millisecond, so a single numeric
// range predicate covers both open and closed intervals (spec §4.6).
const SentinelHastaMs int64 = 253402300799000

// ToDesdeMillis and ToHastaMillis convert a nullable time into the vector store's millisecond
// representation, substituting 0 for a nil desde and the sentinel for a nil
// hasta.
func ToDesdeMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

func ToHastaMillis(t *time.Time) int64 {
	if t == nil {
		return SentinelHastaMs
	}
	return t.UnixMilli()
}
