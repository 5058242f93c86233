package documents

import (
	"context"
	"encoding/json"
	"time"

	"norma-pipeline/internal/parsers"
	"norma-pipeline/internal/territorio"
)

// Norma is the persisted view of one legal norm (spec §3).
type Norma struct {
	IDNorma            string
	Titulo             string
	RangoCodigo        string
	RangoTexto         string
	DepartamentoCodigo string
	DepartamentoTexto  string
	Territorio         territorio.Territorio
	FechaActualizacion *time.Time
	FechaPublicacion   *time.Time
	FechaDisposicion   *time.Time
	URLConsolidated    string
	RawJSON            json.RawMessage
	FirstSeenAt        time.Time
	LastSeenAt         time.Time
}

type NormaRepo struct{ pool pgxPool }

// UpsertFromDiscover inserts an unseen norm, or on a structured-field change
// rewrites the changed fields; otherwise it only touches last_seen_at (spec
// §4.2). dryRun suppresses every write.
func (r *NormaRepo) UpsertFromDiscover(ctx context.Context, item parsers.DiscoverItem, now time.Time, dryRun bool) (Norma, error) {
	res := territorio.Resolve(item)
	next := Norma{
		IDNorma:            item.IDNorma,
		Titulo:             item.Titulo,
		RangoCodigo:        item.Rango.Codigo,
		RangoTexto:         item.Rango.Texto,
		DepartamentoCodigo: res.DepartamentoCodigo,
		DepartamentoTexto:  item.Departamento.Texto,
		Territorio:         res.Territorio,
		FechaActualizacion: item.FechaActualizacion,
		FechaPublicacion:   item.FechaPublicacion,
		FechaDisposicion:   item.FechaDisposicion,
		URLConsolidated:    item.URLConsolidated,
		RawJSON:            item.RawJSON,
		FirstSeenAt:        now,
		LastSeenAt:         now,
	}

	existing, found, err := r.get(ctx, item.IDNorma)
	if err != nil {
		return Norma{}, err
	}
	if dryRun {
		if found {
			return existing, nil
		}
		return next, nil
	}
	if !found {
		const q = `INSERT INTO normas (id_norma, titulo, rango_codigo, rango_texto, departamento_codigo,
			departamento_texto, territorio_tipo, territorio_codigo, territorio_nombre,
			fecha_actualizacion, fecha_publicacion, fecha_disposicion, url_consolidated, raw_json,
			first_seen_at, last_seen_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
		_, err := r.pool.Exec(ctx, q, next.IDNorma, next.Titulo, next.RangoCodigo, next.RangoTexto,
			next.DepartamentoCodigo, next.DepartamentoTexto, next.Territorio.Tipo, next.Territorio.Codigo,
			next.Territorio.Nombre, next.FechaActualizacion, next.FechaPublicacion, next.FechaDisposicion,
			next.URLConsolidated, next.RawJSON, next.FirstSeenAt, next.LastSeenAt)
		return next, err
	}

	if !normaFieldsEqual(existing, next) {
		const q = `UPDATE normas SET titulo=$2, rango_codigo=$3, rango_texto=$4, departamento_codigo=$5,
			departamento_texto=$6, territorio_tipo=$7, territorio_codigo=$8, territorio_nombre=$9,
			fecha_actualizacion=$10, fecha_publicacion=$11, fecha_disposicion=$12, url_consolidated=$13,
			raw_json=$14, last_seen_at=$15 WHERE id_norma=$1`
		_, err := r.pool.Exec(ctx, q, next.IDNorma, next.Titulo, next.RangoCodigo, next.RangoTexto,
			next.DepartamentoCodigo, next.DepartamentoTexto, next.Territorio.Tipo, next.Territorio.Codigo,
			next.Territorio.Nombre, next.FechaActualizacion, next.FechaPublicacion, next.FechaDisposicion,
			next.URLConsolidated, next.RawJSON, now)
		next.FirstSeenAt = existing.FirstSeenAt
		return next, err
	}

	_, err = r.pool.Exec(ctx, `UPDATE normas SET last_seen_at=$2 WHERE id_norma=$1`, item.IDNorma, now)
	existing.LastSeenAt = now
	return existing, err
}

func (r *NormaRepo) get(ctx context.Context, idNorma string) (Norma, bool, error) {
	const q = `SELECT id_norma, titulo, rango_codigo, rango_texto, departamento_codigo, departamento_texto,
		territorio_tipo, territorio_codigo, territorio_nombre, fecha_actualizacion, fecha_publicacion,
		fecha_disposicion, url_consolidated, raw_json, first_seen_at, last_seen_at
		FROM normas WHERE id_norma=$1`
	row := r.pool.QueryRow(ctx, q, idNorma)
	var n Norma
	err := row.Scan(&n.IDNorma, &n.Titulo, &n.RangoCodigo, &n.RangoTexto, &n.DepartamentoCodigo,
		&n.DepartamentoTexto, &n.Territorio.Tipo, &n.Territorio.Codigo, &n.Territorio.Nombre,
		&n.FechaActualizacion, &n.FechaPublicacion, &n.FechaDisposicion, &n.URLConsolidated, &n.RawJSON,
		&n.FirstSeenAt, &n.LastSeenAt)
	if err != nil {
		if isNoRows(err) {
			return Norma{}, false, nil
		}
		return Norma{}, false, err
	}
	return n, true, nil
}

// Get fetches a norm by id.
func (r *NormaRepo) Get(ctx context.Context, idNorma string) (Norma, bool, error) {
	return r.get(ctx, idNorma)
}

// ListIDs returns every norm id, optionally restricted to
// fecha_actualizacion within [from, to] (either bound may be nil), ordered
// by id for deterministic paging. Used by `builder`'s `--all` range scans
// (spec §6 CLI surface).
func (r *NormaRepo) ListIDs(ctx context.Context, from, to *time.Time) ([]string, error) {
	q := `SELECT id_norma FROM normas WHERE ($1::timestamptz IS NULL OR fecha_actualizacion >= $1)
		AND ($2::timestamptz IS NULL OR fecha_actualizacion <= $2) ORDER BY id_norma`
	rows, err := r.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func normaFieldsEqual(a, b Norma) bool {
	if a.Titulo != b.Titulo || a.RangoCodigo != b.RangoCodigo || a.RangoTexto != b.RangoTexto {
		return false
	}
	if a.DepartamentoCodigo != b.DepartamentoCodigo || a.DepartamentoTexto != b.DepartamentoTexto {
		return false
	}
	if a.Territorio != b.Territorio {
		return false
	}
	if !timePtrEqual(a.FechaActualizacion, b.FechaActualizacion) ||
		!timePtrEqual(a.FechaPublicacion, b.FechaPublicacion) ||
		!timePtrEqual(a.FechaDisposicion, b.FechaDisposicion) {
		return false
	}
	if a.URLConsolidated != b.URLConsolidated {
		return false
	}
	return string(a.RawJSON) == string(b.RawJSON)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
