package semunit

import (
	"context"
	"time"

	"norma-pipeline/internal/parsers"
	"norma-pipeline/internal/persistence/documents"
	"norma-pipeline/internal/territorio"
	"norma-pipeline/internal/vigencia"
)

// NormaContext carries the descriptive fields a norm's units inherit,
// snapshotted onto every unit and chunk for retrieval-time filtering.
type NormaContext struct {
	IDNorma            string
	RangoCodigo        string
	RangoTexto         string
	DepartamentoCodigo string
	URLConsolidated    string
	URLEli             string
	Tags               []string
	Territorio         territorio.Territorio
	IndiceHash         string
}

// Sync runs the builder for one norm end to end and persists the result:
// build drafts, dedupe, upsert, mark latest, touch superseded units, and
// recompute vigencia-hasta for every lineage touched (spec §4.5 "Per-norm
// post-processing"), then ensures the territorio catalog carries this
// norm's territory.
func Sync(ctx context.Context, store *documents.Store, nc NormaContext, blocks []parsers.BlockDescriptor, versionsByBlock map[string][]parsers.VersionDescriptor, extract parsers.TextExtractor, now time.Time) error {
	drafts := DedupeByID(BuildUnits(nc.IDNorma, blocks, versionsByBlock, extract))
	latest := ComputeLatest(drafts)

	touched := make(map[string]bool, len(drafts))
	for _, d := range drafts {
		touched[d.LineageKey] = true
		u := draftToUnidad(d, nc, latest[d.LineageKey] == d.IDUnidad, now)
		if err := store.Unidades.Upsert(ctx, u); err != nil {
			return err
		}
	}

	for lineage := range touched {
		if err := store.Unidades.MarkLatestForLineage(ctx, lineage, latest[lineage]); err != nil {
			return err
		}

		units, err := store.Unidades.ListByLineage(ctx, lineage)
		if err != nil {
			return err
		}
		for _, u := range units {
			if u.IDUnidad == latest[lineage] {
				continue
			}
			chunks, err := store.Chunks.ListByUnidad(ctx, u.IDUnidad)
			if err != nil {
				return err
			}
			for _, c := range chunks {
				if err := store.Chunks.TouchLastSeen(ctx, c.IDChunk, now); err != nil {
					return err
				}
			}
		}

		if err := recomputeVigencia(ctx, store, units); err != nil {
			return err
		}
	}

	if err := store.Territorios.EnsureEstado(ctx, now); err != nil {
		return err
	}
	if nc.Territorio.Tipo == territorio.TipoAutonomico {
		if err := store.Territorios.Ensure(ctx, nc.Territorio, now); err != nil {
			return err
		}
	}
	return nil
}

func recomputeVigencia(ctx context.Context, store *documents.Store, units []documents.Unidad) error {
	vs := make([]vigencia.Unit, len(units))
	for i, u := range units {
		vs[i] = vigencia.Unit{IDUnidad: u.IDUnidad, Desde: u.FechaVigenciaDesde, Hasta: u.FechaVigenciaHasta}
	}
	derived := vigencia.DeriveIntervals(vs)

	diffs := make(map[string]*time.Time)
	byID := make(map[string]*time.Time, len(units))
	for _, u := range units {
		byID[u.IDUnidad] = u.FechaVigenciaHasta
	}
	for _, d := range derived {
		if !timePtrEqualVigencia(byID[d.IDUnidad], d.Hasta) {
			diffs[d.IDUnidad] = d.Hasta
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	return store.Unidades.BulkUpdateVigenciaHasta(ctx, diffs)
}

func timePtrEqualVigencia(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func draftToUnidad(d UnitDraft, nc NormaContext, isLatest bool, now time.Time) documents.Unidad {
	var desde *time.Time
	if t, ok, err := parsers.ParseWireDate(d.VigenciaDesdeRaw); err == nil && ok {
		desde = &t
	}
	return documents.Unidad{
		IDUnidad:            d.IDUnidad,
		IDNorma:             d.IDNorma,
		LineageKey:          d.LineageKey,
		UnidadTipo:          string(d.UnidadTipo),
		UnidadRef:           d.UnidadRef,
		Titulo:              d.Titulo,
		Orden:               d.Orden,
		FechaVigenciaDesde:  desde,
		IDNormaModificadora: d.IDNormaModificadora,
		TextoPlano:          d.Texto,
		TextoHash:           d.TextoHash,
		Source: documents.UnidadSource{
			Method:        "semunit",
			BloquesOrigen: d.BloquesOrigen,
			IndiceHash:    nc.IndiceHash,
			VersionHashes: d.VersionHashes,
		},
		Metadata: documents.UnidadMetadata{
			TerritorioCodigo:   nc.Territorio.Codigo,
			TerritorioTipo:     nc.Territorio.Tipo,
			TerritorioNombre:   nc.Territorio.Nombre,
			RangoCodigo:        nc.RangoCodigo,
			RangoTexto:         nc.RangoTexto,
			DepartamentoCodigo: nc.DepartamentoCodigo,
			URLConsolidated:    nc.URLConsolidated,
			URLEli:             nc.URLEli,
			Tags:               nc.Tags,
		},
		IsHeadingOnly: d.IsHeadingOnly,
		SkipRetrieval: d.IsHeadingOnly,
		SkipReason:    string(d.FilterReason),
		IsLatest:      isLatest,
		CreatedAt:     now,
		LastSeenAt:    now,
	}
}
