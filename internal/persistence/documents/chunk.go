package documents

import (
	"context"
	"encoding/json"
	"time"
)

// ChunkSemantico is one retrieval chunk built from a Unidad (spec §3). It
// snapshots the unit's identity and vigencia window at build time so the
// indexer never has to look the unit back up to fill in a point's payload.
type ChunkSemantico struct {
	IDChunk             string
	IDUnidad            string
	IDNorma             string
	ChunkIndex          int
	Texto               string
	TextoHash           string
	ChunkingHash        string
	ChunkingMethod      string
	ChunkingSize        int
	ChunkingOverlap     int
	UnidadTipo          string
	UnidadRef           string
	Titulo              string
	FechaVigenciaDesde  *time.Time
	FechaVigenciaHasta  *time.Time
	Metadata            UnidadMetadata
	CreatedAt           time.Time
	LastSeenAt          time.Time
}

type ChunkRepo struct{ pool pgxPool }

// Upsert writes a chunk by its content-addressed id.
func (r *ChunkRepo) Upsert(ctx context.Context, c ChunkSemantico) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	const q = `INSERT INTO chunks_semanticos (id_chunk, id_unidad, id_norma, chunk_index, texto, texto_hash,
		chunking_hash, chunking_method, chunking_size, chunking_overlap, unidad_tipo, unidad_ref, titulo,
		fecha_vigencia_desde, fecha_vigencia_hasta, metadata, created_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id_chunk) DO UPDATE SET last_seen_at=excluded.last_seen_at`
	_, err = r.pool.Exec(ctx, q, c.IDChunk, c.IDUnidad, c.IDNorma, c.ChunkIndex, c.Texto, c.TextoHash,
		c.ChunkingHash, c.ChunkingMethod, c.ChunkingSize, c.ChunkingOverlap, c.UnidadTipo, c.UnidadRef, c.Titulo,
		c.FechaVigenciaDesde, c.FechaVigenciaHasta, metadata, c.CreatedAt, c.LastSeenAt)
	return err
}

// DeleteOrphans removes every chunk of (idUnidad, chunkingHash) not in
// keepIDs — the GC half of the invariant that the persisted set always
// equals the set produced by the current builder pass.
func (r *ChunkRepo) DeleteOrphans(ctx context.Context, idUnidad, chunkingHash string, keepIDs []string) (int64, error) {
	const q = `DELETE FROM chunks_semanticos WHERE id_unidad=$1 AND chunking_hash=$2 AND NOT (id_chunk = ANY($3))`
	tag, err := r.pool.Exec(ctx, q, idUnidad, chunkingHash, keepIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByUnidad returns every chunk currently persisted for a unit.
func (r *ChunkRepo) ListByUnidad(ctx context.Context, idUnidad string) ([]ChunkSemantico, error) {
	const q = `SELECT id_chunk, id_unidad, id_norma, chunk_index, texto, texto_hash, chunking_hash,
		chunking_method, chunking_size, chunking_overlap, unidad_tipo, unidad_ref, titulo,
		fecha_vigencia_desde, fecha_vigencia_hasta, metadata, created_at, last_seen_at
		FROM chunks_semanticos WHERE id_unidad=$1 ORDER BY chunk_index ASC`
	rows, err := r.pool.Query(ctx, q, idUnidad)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkSemantico
	for rows.Next() {
		var c ChunkSemantico
		var metadata []byte
		if err := rows.Scan(&c.IDChunk, &c.IDUnidad, &c.IDNorma, &c.ChunkIndex, &c.Texto, &c.TextoHash,
			&c.ChunkingHash, &c.ChunkingMethod, &c.ChunkingSize, &c.ChunkingOverlap, &c.UnidadTipo, &c.UnidadRef,
			&c.Titulo, &c.FechaVigenciaDesde, &c.FechaVigenciaHasta, &metadata,
			&c.CreatedAt, &c.LastSeenAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(metadata, &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListAll returns every persisted chunk, ordered the way the indexer
// streams a whole-corpus pass: (id_norma, id_unidad, chunk_index).
func (r *ChunkRepo) ListAll(ctx context.Context) ([]ChunkSemantico, error) {
	const q = `SELECT id_chunk, id_unidad, id_norma, chunk_index, texto, texto_hash, chunking_hash,
		chunking_method, chunking_size, chunking_overlap, unidad_tipo, unidad_ref, titulo,
		fecha_vigencia_desde, fecha_vigencia_hasta, metadata, created_at, last_seen_at
		FROM chunks_semanticos ORDER BY id_norma ASC, id_unidad ASC, chunk_index ASC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkSemantico
	for rows.Next() {
		var c ChunkSemantico
		var metadata []byte
		if err := rows.Scan(&c.IDChunk, &c.IDUnidad, &c.IDNorma, &c.ChunkIndex, &c.Texto, &c.TextoHash,
			&c.ChunkingHash, &c.ChunkingMethod, &c.ChunkingSize, &c.ChunkingOverlap, &c.UnidadTipo, &c.UnidadRef,
			&c.Titulo, &c.FechaVigenciaDesde, &c.FechaVigenciaHasta, &metadata,
			&c.CreatedAt, &c.LastSeenAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(metadata, &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ChunkRepo) TouchLastSeen(ctx context.Context, idChunk string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE chunks_semanticos SET last_seen_at=$2 WHERE id_chunk=$1`, idChunk, now)
	return err
}
