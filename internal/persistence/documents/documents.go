// Package documents holds the typed Postgres repositories for every
// persistent entity in the pipeline (Norma, Indice, Bloque, Version, Unidad,
// ChunkSemantico, TerritorioCatalog, SyncState), plus the schema/index set
// they run against.
package documents

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool opens a pgx connection pool with the conservative defaults used
// throughout this pipeline, pinging once before returning.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 16
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store bundles one repository per entity over a shared pool.
type Store struct {
	Pool        *pgxpool.Pool
	Normas      *NormaRepo
	Indices     *IndiceRepo
	Bloques     *BloqueRepo
	Versions    *VersionRepo
	Unidades    *UnidadRepo
	Chunks      *ChunkRepo
	Territorios *TerritorioRepo
	SyncStates  *SyncStateRepo
}

// NewStore wires every repository against the same pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Pool:        pool,
		Normas:      &NormaRepo{pool: pool},
		Indices:     &IndiceRepo{pool: pool},
		Bloques:     &BloqueRepo{pool: pool},
		Versions:    &VersionRepo{pool: pool},
		Unidades:    &UnidadRepo{pool: pool},
		Chunks:      &ChunkRepo{pool: pool},
		Territorios: &TerritorioRepo{pool: pool},
		SyncStates:  &SyncStateRepo{pool: pool},
	}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.Pool.Close()
}
