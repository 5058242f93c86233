package documents

import (
	"context"
	"time"
)

// Indice is one observed index-XML snapshot for a norm (spec §3).
type Indice struct {
	IDIndice              string
	IDNorma               string
	FechaActualizacionRaw string
	HashXML               string
	HashPretty            string
	FilePath              string
	IsLatest              bool
	CreatedAt             time.Time
	LastSeenAt            time.Time
}

type IndiceRepo struct{ pool pgxPool }

// InsertIfMissing is idempotent by id: a second insert of the same
// content-addressed id is a no-op that only touches last_seen_at.
func (r *IndiceRepo) InsertIfMissing(ctx context.Context, doc Indice) (bool, error) {
	const q = `INSERT INTO indices (id_indice, id_norma, fecha_actualizacion_raw, hash_xml, hash_pretty,
		file_path, is_latest, created_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id_indice) DO UPDATE SET last_seen_at=excluded.last_seen_at
		RETURNING (xmax = 0)`
	var inserted bool
	err := r.pool.QueryRow(ctx, q, doc.IDIndice, doc.IDNorma, doc.FechaActualizacionRaw, doc.HashXML,
		doc.HashPretty, doc.FilePath, doc.IsLatest, doc.CreatedAt, doc.LastSeenAt).Scan(&inserted)
	return inserted, err
}

// MarkLatestForNorma flips is_latest atomically within the norm's scope.
func (r *IndiceRepo) MarkLatestForNorma(ctx context.Context, idNorma, latestID string) error {
	const q = `UPDATE indices SET is_latest = (id_indice = $2) WHERE id_norma = $1`
	_, err := r.pool.Exec(ctx, q, idNorma, latestID)
	return err
}

func (r *IndiceRepo) TouchLastSeen(ctx context.Context, idIndice string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE indices SET last_seen_at=$2 WHERE id_indice=$1`, idIndice, now)
	return err
}

// GetLatest returns the index snapshot currently marked is_latest for a norm.
func (r *IndiceRepo) GetLatest(ctx context.Context, idNorma string) (Indice, bool, error) {
	const q = `SELECT id_indice, id_norma, fecha_actualizacion_raw, hash_xml, hash_pretty, file_path,
		is_latest, created_at, last_seen_at FROM indices WHERE id_norma=$1 AND is_latest LIMIT 1`
	var doc Indice
	err := r.pool.QueryRow(ctx, q, idNorma).Scan(&doc.IDIndice, &doc.IDNorma, &doc.FechaActualizacionRaw,
		&doc.HashXML, &doc.HashPretty, &doc.FilePath, &doc.IsLatest, &doc.CreatedAt, &doc.LastSeenAt)
	if err != nil {
		if isNoRows(err) {
			return Indice{}, false, nil
		}
		return Indice{}, false, err
	}
	return doc, true, nil
}
