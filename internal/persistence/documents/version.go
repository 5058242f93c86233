package documents

import (
	"context"
	"time"
)

// Version is one immutable observed version of a block (spec §3).
type Version struct {
	IDVersion           string
	IDNorma             string
	IDBloque            string
	FechaVigenciaRaw    string
	FechaPublicacionRaw string
	IDNormaModificadora string
	HashXML             string
	FilePath            string
	TextoPlano          string
	TextoHash           string
	IsLatest            bool
	CreatedAt           time.Time
	LastSeenAt          time.Time
}

type VersionRepo struct{ pool pgxPool }

// InsertIfMissing is idempotent by id; versions are immutable once created.
func (r *VersionRepo) InsertIfMissing(ctx context.Context, doc Version) (bool, error) {
	const q = `INSERT INTO versions (id_version, id_norma, id_bloque, fecha_vigencia_raw,
		fecha_publicacion_raw, id_norma_modificadora, hash_xml, file_path, texto_plano, texto_hash,
		is_latest, created_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id_version) DO UPDATE SET last_seen_at=excluded.last_seen_at
		RETURNING (xmax = 0)`
	var inserted bool
	err := r.pool.QueryRow(ctx, q, doc.IDVersion, doc.IDNorma, doc.IDBloque, doc.FechaVigenciaRaw,
		doc.FechaPublicacionRaw, doc.IDNormaModificadora, doc.HashXML, doc.FilePath, doc.TextoPlano,
		doc.TextoHash, doc.IsLatest, doc.CreatedAt, doc.LastSeenAt).Scan(&inserted)
	return inserted, err
}

// MarkLatestForBlock flips is_latest atomically within (id_norma, id_bloque).
func (r *VersionRepo) MarkLatestForBlock(ctx context.Context, idNorma, idBloque, latestID string) error {
	const q = `UPDATE versions SET is_latest = (id_version = $3) WHERE id_norma=$1 AND id_bloque=$2`
	_, err := r.pool.Exec(ctx, q, idNorma, idBloque, latestID)
	return err
}

// UpsertRagFields rewrites a version's extracted text and its hash, computed
// once the text extractor has run over the raw XML slice.
func (r *VersionRepo) UpsertRagFields(ctx context.Context, idVersion, textoPlano, textoHash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE versions SET texto_plano=$2, texto_hash=$3 WHERE id_version=$1`,
		idVersion, textoPlano, textoHash)
	return err
}

func (r *VersionRepo) TouchLastSeen(ctx context.Context, idVersion string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE versions SET last_seen_at=$2 WHERE id_version=$1`, idVersion, now)
	return err
}

// LatestForBlock returns the version currently flagged as latest for a
// block, used by the semantic unit builder's per-anchor version selection.
func (r *VersionRepo) LatestForBlock(ctx context.Context, idNorma, idBloque string) (Version, bool, error) {
	const q = `SELECT id_version, id_norma, id_bloque, fecha_vigencia_raw, fecha_publicacion_raw,
		id_norma_modificadora, hash_xml, file_path, texto_plano, texto_hash, is_latest, created_at, last_seen_at
		FROM versions WHERE id_norma=$1 AND id_bloque=$2 AND is_latest ORDER BY created_at DESC LIMIT 1`
	row := r.pool.QueryRow(ctx, q, idNorma, idBloque)
	var v Version
	err := row.Scan(&v.IDVersion, &v.IDNorma, &v.IDBloque, &v.FechaVigenciaRaw, &v.FechaPublicacionRaw,
		&v.IDNormaModificadora, &v.HashXML, &v.FilePath, &v.TextoPlano, &v.TextoHash, &v.IsLatest,
		&v.CreatedAt, &v.LastSeenAt)
	if err != nil {
		if isNoRows(err) {
			return Version{}, false, nil
		}
		return Version{}, false, err
	}
	return v, true, nil
}

// ListForBlock returns every observed version of a block ordered by vigencia
// then creation, for vigencia interval derivation across the lineage.
func (r *VersionRepo) ListForBlock(ctx context.Context, idNorma, idBloque string) ([]Version, error) {
	const q = `SELECT id_version, id_norma, id_bloque, fecha_vigencia_raw, fecha_publicacion_raw,
		id_norma_modificadora, hash_xml, file_path, texto_plano, texto_hash, is_latest, created_at, last_seen_at
		FROM versions WHERE id_norma=$1 AND id_bloque=$2 ORDER BY fecha_vigencia_raw ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, q, idNorma, idBloque)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.IDVersion, &v.IDNorma, &v.IDBloque, &v.FechaVigenciaRaw, &v.FechaPublicacionRaw,
			&v.IDNormaModificadora, &v.HashXML, &v.FilePath, &v.TextoPlano, &v.TextoHash, &v.IsLatest,
			&v.CreatedAt, &v.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
