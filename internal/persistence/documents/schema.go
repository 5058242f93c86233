package documents

import "context"

// schemaStatements creates every table and the index set required by §4.2:
// uniqueness on id_norma/id_version/id_indice/id_unidad/codigo, lookup
// indices on (id_norma, id_bloque), lineage_key+vigencia, territorio code,
// and per-stage status+last_started_at for orchestrator scans.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS normas (
		id_norma TEXT PRIMARY KEY,
		titulo TEXT NOT NULL DEFAULT '',
		rango_codigo TEXT NOT NULL DEFAULT '',
		rango_texto TEXT NOT NULL DEFAULT '',
		departamento_codigo TEXT NOT NULL DEFAULT '',
		departamento_texto TEXT NOT NULL DEFAULT '',
		territorio_tipo TEXT NOT NULL DEFAULT '',
		territorio_codigo TEXT NOT NULL DEFAULT '',
		territorio_nombre TEXT NOT NULL DEFAULT '',
		fecha_actualizacion TIMESTAMPTZ,
		fecha_publicacion TIMESTAMPTZ,
		fecha_disposicion TIMESTAMPTZ,
		url_consolidated TEXT NOT NULL DEFAULT '',
		raw_json JSONB,
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS indices (
		id_indice TEXT PRIMARY KEY,
		id_norma TEXT NOT NULL REFERENCES normas(id_norma),
		fecha_actualizacion_raw TEXT NOT NULL DEFAULT '',
		hash_xml TEXT NOT NULL,
		hash_pretty TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL DEFAULT '',
		is_latest BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indices_norma ON indices(id_norma)`,
	`CREATE TABLE IF NOT EXISTS bloques (
		id_bloque_key TEXT PRIMARY KEY,
		id_norma TEXT NOT NULL REFERENCES normas(id_norma),
		id_bloque TEXT NOT NULL,
		tipo TEXT NOT NULL DEFAULT '',
		titulo TEXT NOT NULL DEFAULT '',
		orden INTEGER NOT NULL DEFAULT 0,
		fecha_actualizacion_raw TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		latest_version_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bloques_norma_bloque ON bloques(id_norma, id_bloque)`,
	`CREATE INDEX IF NOT EXISTS idx_bloques_norma_orden ON bloques(id_norma, orden)`,
	`CREATE TABLE IF NOT EXISTS versions (
		id_version TEXT PRIMARY KEY,
		id_norma TEXT NOT NULL REFERENCES normas(id_norma),
		id_bloque TEXT NOT NULL,
		fecha_vigencia_raw TEXT NOT NULL DEFAULT '',
		fecha_publicacion_raw TEXT NOT NULL DEFAULT '',
		id_norma_modificadora TEXT NOT NULL DEFAULT '',
		hash_xml TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		texto_plano TEXT NOT NULL DEFAULT '',
		texto_hash TEXT NOT NULL DEFAULT '',
		is_latest BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_versions_norma_bloque ON versions(id_norma, id_bloque)`,
	`CREATE TABLE IF NOT EXISTS unidades (
		id_unidad TEXT PRIMARY KEY,
		id_norma TEXT NOT NULL REFERENCES normas(id_norma),
		lineage_key TEXT NOT NULL,
		unidad_tipo TEXT NOT NULL,
		unidad_ref TEXT NOT NULL,
		titulo TEXT NOT NULL DEFAULT '',
		orden INTEGER NOT NULL DEFAULT 0,
		fecha_vigencia_desde TIMESTAMPTZ,
		fecha_vigencia_hasta TIMESTAMPTZ,
		id_norma_modificadora TEXT NOT NULL DEFAULT '',
		texto_plano TEXT NOT NULL DEFAULT '',
		texto_hash TEXT NOT NULL DEFAULT '',
		source JSONB,
		metadata JSONB,
		is_heading_only BOOLEAN NOT NULL DEFAULT false,
		skip_retrieval BOOLEAN NOT NULL DEFAULT false,
		skip_reason TEXT NOT NULL DEFAULT '',
		is_latest BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_unidades_lineage_vigencia ON unidades(lineage_key, fecha_vigencia_desde)`,
	`CREATE INDEX IF NOT EXISTS idx_unidades_norma ON unidades(id_norma)`,
	`CREATE TABLE IF NOT EXISTS chunks_semanticos (
		id_chunk TEXT PRIMARY KEY,
		id_unidad TEXT NOT NULL REFERENCES unidades(id_unidad),
		id_norma TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		texto TEXT NOT NULL,
		texto_hash TEXT NOT NULL,
		chunking_hash TEXT NOT NULL,
		chunking_method TEXT NOT NULL DEFAULT '',
		chunking_size INTEGER NOT NULL DEFAULT 0,
		chunking_overlap INTEGER NOT NULL DEFAULT 0,
		unidad_tipo TEXT NOT NULL DEFAULT '',
		unidad_ref TEXT NOT NULL DEFAULT '',
		titulo TEXT NOT NULL DEFAULT '',
		fecha_vigencia_desde TIMESTAMPTZ,
		fecha_vigencia_hasta TIMESTAMPTZ,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_unidad_hash ON chunks_semanticos(id_unidad, chunking_hash)`,
	`CREATE TABLE IF NOT EXISTS territorio_catalog (
		codigo TEXT PRIMARY KEY,
		nombre TEXT NOT NULL DEFAULT '',
		tipo TEXT NOT NULL,
		departamento_codigo TEXT NOT NULL DEFAULT '',
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_state (
		id_norma TEXT PRIMARY KEY REFERENCES normas(id_norma),
		status TEXT NOT NULL DEFAULT 'pending',
		stage_sync_status TEXT NOT NULL DEFAULT 'pending',
		stage_sync_attempts INTEGER NOT NULL DEFAULT 0,
		stage_sync_started_at TIMESTAMPTZ,
		stage_sync_finished_at TIMESTAMPTZ,
		stage_build_units_status TEXT NOT NULL DEFAULT 'pending',
		stage_build_units_attempts INTEGER NOT NULL DEFAULT 0,
		stage_build_units_started_at TIMESTAMPTZ,
		stage_build_units_finished_at TIMESTAMPTZ,
		stage_build_chunks_status TEXT NOT NULL DEFAULT 'pending',
		stage_build_chunks_attempts INTEGER NOT NULL DEFAULT 0,
		stage_build_chunks_started_at TIMESTAMPTZ,
		stage_build_chunks_finished_at TIMESTAMPTZ,
		stage_index_status TEXT NOT NULL DEFAULT 'pending',
		stage_index_attempts INTEGER NOT NULL DEFAULT 0,
		stage_index_started_at TIMESTAMPTZ,
		stage_index_finished_at TIMESTAMPTZ,
		last_error_message TEXT NOT NULL DEFAULT '',
		last_seen_at TIMESTAMPTZ NOT NULL,
		last_started_at TIMESTAMPTZ,
		last_finished_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_state_sync_scan ON sync_state(stage_sync_status, stage_sync_started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_state_build_units_scan ON sync_state(stage_build_units_status, stage_build_units_started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_state_build_chunks_scan ON sync_state(stage_build_chunks_status, stage_build_chunks_started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_state_index_scan ON sync_state(stage_index_status, stage_index_started_at)`,
}

// EnsureSchema creates every table and index if missing. It never drops
// application data; the one exception named by §4.2 (dropping sync_state
// indices defined with a stale key shape) is handled by dropLegacySyncIndices.
func EnsureSchema(ctx context.Context, pool pgxPool) error {
	if err := dropLegacySyncIndices(ctx, pool); err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// legacySyncIndexNames lists index names this system has used in the past
// for sync_state scans under a different key definition; they are dropped
// unconditionally before recreation so a stale shape never lingers.
var legacySyncIndexNames = []string{
	"idx_sync_state_status",
	"idx_sync_state_stage_status",
}

func dropLegacySyncIndices(ctx context.Context, pool pgxPool) error {
	for _, name := range legacySyncIndexNames {
		if _, err := pool.Exec(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return err
		}
	}
	return nil
}
