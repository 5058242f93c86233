package documents

import (
	"context"
	"time"
)

// Bloque is a norm's index block: preamble, article, disposition, annex...
type Bloque struct {
	Key                   string // H(id_norma, id_bloque)
	IDNorma               string
	IDBloque              string
	Tipo                  string
	Titulo                string
	Orden                 int
	FechaActualizacionRaw string
	URL                   string
	LatestVersionID       string
	CreatedAt             time.Time
	LastSeenAt            time.Time
}

type BloqueRepo struct{ pool pgxPool }

// InsertIfMissing upserts a bloque by its key; the index's update timestamp
// is treated as dirty-detection, so on re-sync with an unchanged timestamp
// this call only touches last_seen_at.
func (r *BloqueRepo) InsertIfMissing(ctx context.Context, doc Bloque) error {
	const q = `INSERT INTO bloques (id_bloque_key, id_norma, id_bloque, tipo, titulo, orden,
		fecha_actualizacion_raw, url, latest_version_id, created_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id_bloque_key) DO UPDATE SET
			tipo = CASE WHEN bloques.fecha_actualizacion_raw <> excluded.fecha_actualizacion_raw THEN excluded.tipo ELSE bloques.tipo END,
			titulo = CASE WHEN bloques.fecha_actualizacion_raw <> excluded.fecha_actualizacion_raw THEN excluded.titulo ELSE bloques.titulo END,
			url = CASE WHEN bloques.fecha_actualizacion_raw <> excluded.fecha_actualizacion_raw THEN excluded.url ELSE bloques.url END,
			orden = excluded.orden,
			fecha_actualizacion_raw = excluded.fecha_actualizacion_raw,
			last_seen_at = excluded.last_seen_at`
	_, err := r.pool.Exec(ctx, q, doc.Key, doc.IDNorma, doc.IDBloque, doc.Tipo, doc.Titulo, doc.Orden,
		doc.FechaActualizacionRaw, doc.URL, doc.LatestVersionID, doc.CreatedAt, doc.LastSeenAt)
	return err
}

// ListByNorma returns every bloque of a norm in index order, the shape the
// semantic unit builder needs to rebuild its block tree (spec §4.5).
func (r *BloqueRepo) ListByNorma(ctx context.Context, idNorma string) ([]Bloque, error) {
	const q = `SELECT id_bloque_key, id_norma, id_bloque, tipo, titulo, orden,
		fecha_actualizacion_raw, url, latest_version_id, created_at, last_seen_at
		FROM bloques WHERE id_norma=$1 ORDER BY orden ASC`
	rows, err := r.pool.Query(ctx, q, idNorma)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bloque
	for rows.Next() {
		var b Bloque
		if err := rows.Scan(&b.Key, &b.IDNorma, &b.IDBloque, &b.Tipo, &b.Titulo, &b.Orden,
			&b.FechaActualizacionRaw, &b.URL, &b.LatestVersionID, &b.CreatedAt, &b.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BloqueRepo) MarkLatestVersion(ctx context.Context, key, latestVersionID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE bloques SET latest_version_id=$2 WHERE id_bloque_key=$1`, key, latestVersionID)
	return err
}

func (r *BloqueRepo) TouchLastSeen(ctx context.Context, key string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE bloques SET last_seen_at=$2 WHERE id_bloque_key=$1`, key, now)
	return err
}
