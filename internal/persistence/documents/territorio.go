package documents

import (
	"context"
	"time"

	"norma-pipeline/internal/territorio"
)

type TerritorioRepo struct{ pool pgxPool }

// Ensure upserts a territorio catalog entry whenever a norm is processed.
func (r *TerritorioRepo) Ensure(ctx context.Context, t territorio.Territorio, now time.Time) error {
	const q = `INSERT INTO territorio_catalog (codigo, nombre, tipo, departamento_codigo, last_seen_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (codigo) DO UPDATE SET nombre=excluded.nombre, last_seen_at=excluded.last_seen_at`
	dept := ""
	if t.Tipo == territorio.TipoAutonomico {
		dept = t.Codigo[len("CCAA:"):]
	}
	_, err := r.pool.Exec(ctx, q, t.Codigo, t.Nombre, t.Tipo, dept, now)
	return err
}

// EnsureEstado guarantees ES:STATE always exists, independent of any norm
// having been processed yet.
func (r *TerritorioRepo) EnsureEstado(ctx context.Context, now time.Time) error {
	return r.Ensure(ctx, territorio.Territorio{
		Tipo:   territorio.TipoEstatal,
		Codigo: territorio.CodigoEstado,
		Nombre: "Estado",
	}, now)
}

// ListCCAA returns every AUTONOMICO catalog entry, backing the
// GET /rag/catalog/ccaa retrieval endpoint.
func (r *TerritorioRepo) ListCCAA(ctx context.Context) ([]territorio.Territorio, error) {
	rows, err := r.pool.Query(ctx, `SELECT codigo, nombre, tipo FROM territorio_catalog WHERE tipo=$1 ORDER BY nombre ASC`,
		territorio.TipoAutonomico)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []territorio.Territorio
	for rows.Next() {
		var t territorio.Territorio
		if err := rows.Scan(&t.Codigo, &t.Nombre, &t.Tipo); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
