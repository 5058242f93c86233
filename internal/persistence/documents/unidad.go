package documents

import (
	"context"
	"encoding/json"
	"time"
)

// UnidadSource records the provenance of a built unit (spec §3).
type UnidadSource struct {
	Method         string   `json:"method"`
	BloquesOrigen  []string `json:"bloques_origen"`
	IndiceHash     string   `json:"indice_hash"`
	VersionHashes  []string `json:"version_hashes"`
}

// UnidadMetadata snapshots descriptive fields alongside the unit's text.
type UnidadMetadata struct {
	TerritorioCodigo string   `json:"territorio_codigo"`
	TerritorioTipo   string   `json:"territorio_tipo"`
	TerritorioNombre string   `json:"territorio_nombre"`
	RangoCodigo      string   `json:"rango_codigo"`
	RangoTexto       string   `json:"rango_texto"`
	DepartamentoCodigo string `json:"departamento_codigo"`
	URLConsolidated  string   `json:"url_consolidated"`
	URLEli           string   `json:"url_eli"`
	Tags             []string `json:"tags"`
}

// Unidad is one retrieval unit: an article, disposition, annex, or preamble
// block assembled from one or more index blocks (spec §3).
type Unidad struct {
	IDUnidad            string
	IDNorma             string
	LineageKey          string
	UnidadTipo          string
	UnidadRef           string
	Titulo              string
	Orden               int
	FechaVigenciaDesde  *time.Time
	FechaVigenciaHasta  *time.Time
	IDNormaModificadora string
	TextoPlano          string
	TextoHash           string
	Source              UnidadSource
	Metadata            UnidadMetadata
	IsHeadingOnly       bool
	SkipRetrieval       bool
	SkipReason          string
	IsLatest            bool
	CreatedAt           time.Time
	LastSeenAt          time.Time
}

type UnidadRepo struct{ pool pgxPool }

// Upsert writes a unit by its content-addressed id; since the id already
// encodes every semantically-relevant field, a conflict is always a
// last-seen touch, never a content rewrite.
func (r *UnidadRepo) Upsert(ctx context.Context, u Unidad) error {
	source, err := json.Marshal(u.Source)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(u.Metadata)
	if err != nil {
		return err
	}
	const q = `INSERT INTO unidades (id_unidad, id_norma, lineage_key, unidad_tipo, unidad_ref, titulo,
		orden, fecha_vigencia_desde, fecha_vigencia_hasta, id_norma_modificadora, texto_plano, texto_hash,
		source, metadata, is_heading_only, skip_retrieval, skip_reason, is_latest, created_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id_unidad) DO UPDATE SET
			fecha_vigencia_hasta = excluded.fecha_vigencia_hasta,
			is_latest = excluded.is_latest,
			last_seen_at = excluded.last_seen_at`
	_, err = r.pool.Exec(ctx, q, u.IDUnidad, u.IDNorma, u.LineageKey, u.UnidadTipo, u.UnidadRef, u.Titulo,
		u.Orden, u.FechaVigenciaDesde, u.FechaVigenciaHasta, u.IDNormaModificadora, u.TextoPlano, u.TextoHash,
		source, metadata, u.IsHeadingOnly, u.SkipRetrieval, u.SkipReason, u.IsLatest, u.CreatedAt, u.LastSeenAt)
	return err
}

// Get fetches one unit by id, the lookup behind GET /rag/unidad/{id_unidad}.
func (r *UnidadRepo) Get(ctx context.Context, idUnidad string) (Unidad, bool, error) {
	const q = `SELECT id_unidad, id_norma, lineage_key, unidad_tipo, unidad_ref, titulo, orden,
		fecha_vigencia_desde, fecha_vigencia_hasta, id_norma_modificadora, texto_plano, texto_hash,
		source, metadata, is_heading_only, skip_retrieval, skip_reason, is_latest, created_at, last_seen_at
		FROM unidades WHERE id_unidad=$1`
	row := r.pool.QueryRow(ctx, q, idUnidad)
	var u Unidad
	var source, metadata []byte
	err := row.Scan(&u.IDUnidad, &u.IDNorma, &u.LineageKey, &u.UnidadTipo, &u.UnidadRef, &u.Titulo,
		&u.Orden, &u.FechaVigenciaDesde, &u.FechaVigenciaHasta, &u.IDNormaModificadora, &u.TextoPlano,
		&u.TextoHash, &source, &metadata, &u.IsHeadingOnly, &u.SkipRetrieval, &u.SkipReason, &u.IsLatest,
		&u.CreatedAt, &u.LastSeenAt)
	if err != nil {
		if isNoRows(err) {
			return Unidad{}, false, nil
		}
		return Unidad{}, false, err
	}
	_ = json.Unmarshal(source, &u.Source)
	_ = json.Unmarshal(metadata, &u.Metadata)
	return u, true, nil
}

// DeleteNotIn removes every unit of id_norma whose id is not in keepIDs,
// implementing the builder's per-pass GC of superseded units.
func (r *UnidadRepo) DeleteNotIn(ctx context.Context, idNorma string, keepIDs []string) (int64, error) {
	const q = `DELETE FROM unidades WHERE id_norma=$1 AND NOT (id_unidad = ANY($2))`
	tag, err := r.pool.Exec(ctx, q, idNorma, keepIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DistinctLineageKeys returns every lineage_key observed for a norm, the
// recomputation entry point for the vigencia engine.
func (r *UnidadRepo) DistinctLineageKeys(ctx context.Context, idNorma string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT lineage_key FROM unidades WHERE id_norma=$1`, idNorma)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ListByLineage returns every unit for one lineage, ordered by the total
// order the vigencia engine relies on:
// (fecha_vigencia_desde, fecha_publicacion_mod id omitted here, id_unidad).
func (r *UnidadRepo) ListByLineage(ctx context.Context, lineageKey string) ([]Unidad, error) {
	const q = `SELECT id_unidad, id_norma, lineage_key, unidad_tipo, unidad_ref, titulo, orden,
		fecha_vigencia_desde, fecha_vigencia_hasta, id_norma_modificadora, texto_plano, texto_hash,
		source, metadata, is_heading_only, skip_retrieval, skip_reason, is_latest, created_at, last_seen_at
		FROM unidades WHERE lineage_key=$1 ORDER BY fecha_vigencia_desde ASC NULLS FIRST, id_unidad ASC`
	rows, err := r.pool.Query(ctx, q, lineageKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Unidad
	for rows.Next() {
		var u Unidad
		var source, metadata []byte
		if err := rows.Scan(&u.IDUnidad, &u.IDNorma, &u.LineageKey, &u.UnidadTipo, &u.UnidadRef, &u.Titulo,
			&u.Orden, &u.FechaVigenciaDesde, &u.FechaVigenciaHasta, &u.IDNormaModificadora, &u.TextoPlano,
			&u.TextoHash, &source, &metadata, &u.IsHeadingOnly, &u.SkipRetrieval, &u.SkipReason, &u.IsLatest,
			&u.CreatedAt, &u.LastSeenAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(source, &u.Source)
		_ = json.Unmarshal(metadata, &u.Metadata)
		out = append(out, u)
	}
	return out, rows.Err()
}

// BulkUpdateVigenciaHasta rewrites the derived hasta bound for a set of
// units; hasta is never written by the builder directly (spec §3).
func (r *UnidadRepo) BulkUpdateVigenciaHasta(ctx context.Context, updates map[string]*time.Time) error {
	for id, hasta := range updates {
		if _, err := r.pool.Exec(ctx, `UPDATE unidades SET fecha_vigencia_hasta=$2 WHERE id_unidad=$1`, id, hasta); err != nil {
			return err
		}
	}
	return nil
}

// MarkLatestForLineage flips is_latest so exactly one unit per lineage_key
// carries it (invariant: exactly one unit per lineage has is_latest = true).
func (r *UnidadRepo) MarkLatestForLineage(ctx context.Context, lineageKey, latestID string) error {
	const q = `UPDATE unidades SET is_latest = (id_unidad = $2) WHERE lineage_key=$1`
	_, err := r.pool.Exec(ctx, q, lineageKey, latestID)
	return err
}
