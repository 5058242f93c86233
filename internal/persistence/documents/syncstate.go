package documents

import (
	"context"
	"time"
)

type SyncStateRepo struct{ pool pgxPool }

// EnsureNormaPending creates a fresh all-pending row if none exists. If
// forceResetStages is non-empty on an existing row, those stages (and the
// rollup) are reset to pending.
func (r *SyncStateRepo) EnsureNormaPending(ctx context.Context, idNorma string, now time.Time, forceResetStages []Stage) (SyncState, error) {
	existing, found, err := r.Get(ctx, idNorma)
	if err != nil {
		return SyncState{}, err
	}
	if !found {
		fresh := NewPendingSyncState(idNorma, now)
		if err := r.save(ctx, fresh); err != nil {
			return SyncState{}, err
		}
		return fresh, nil
	}
	if len(forceResetStages) > 0 {
		existing.ResetStages(forceResetStages)
		if err := r.save(ctx, existing); err != nil {
			return SyncState{}, err
		}
	}
	return existing, nil
}

func (r *SyncStateRepo) MarkStageStart(ctx context.Context, idNorma string, stage Stage, now time.Time) error {
	s, found, err := r.Get(ctx, idNorma)
	if err != nil {
		return err
	}
	if !found {
		s = NewPendingSyncState(idNorma, now)
	}
	s.MarkStageStart(stage, now)
	return r.save(ctx, s)
}

func (r *SyncStateRepo) MarkStageSuccess(ctx context.Context, idNorma string, stage Stage, now time.Time) error {
	s, found, err := r.Get(ctx, idNorma)
	if err != nil {
		return err
	}
	if !found {
		s = NewPendingSyncState(idNorma, now)
	}
	s.MarkStageSuccess(stage, now)
	return r.save(ctx, s)
}

func (r *SyncStateRepo) MarkStageFailure(ctx context.Context, idNorma string, stage Stage, errMsg string, now time.Time) error {
	s, found, err := r.Get(ctx, idNorma)
	if err != nil {
		return err
	}
	if !found {
		s = NewPendingSyncState(idNorma, now)
	}
	s.MarkStageFailure(stage, errMsg, now)
	return r.save(ctx, s)
}

// MarkSyncStart/Success/Failure are the legacy helpers mapping the whole-norm
// lifecycle onto the sync stage (spec §4.2).
func (r *SyncStateRepo) MarkSyncStart(ctx context.Context, idNorma string, now time.Time) error {
	return r.MarkStageStart(ctx, idNorma, StageSync, now)
}

func (r *SyncStateRepo) MarkSyncSuccess(ctx context.Context, idNorma string, now time.Time) error {
	return r.MarkStageSuccess(ctx, idNorma, StageSync, now)
}

func (r *SyncStateRepo) MarkSyncFailure(ctx context.Context, idNorma, errMsg string, now time.Time) error {
	return r.MarkStageFailure(ctx, idNorma, StageSync, errMsg, now)
}

func (r *SyncStateRepo) save(ctx context.Context, s SyncState) error {
	sy, bu, bc, ix := s.Stages[StageSync], s.Stages[StageBuildUnits], s.Stages[StageBuildChunks], s.Stages[StageIndex]
	const q = `INSERT INTO sync_state (id_norma, status,
		stage_sync_status, stage_sync_attempts, stage_sync_started_at, stage_sync_finished_at,
		stage_build_units_status, stage_build_units_attempts, stage_build_units_started_at, stage_build_units_finished_at,
		stage_build_chunks_status, stage_build_chunks_attempts, stage_build_chunks_started_at, stage_build_chunks_finished_at,
		stage_index_status, stage_index_attempts, stage_index_started_at, stage_index_finished_at,
		last_error_message, last_seen_at, last_started_at, last_finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (id_norma) DO UPDATE SET
			status=excluded.status,
			stage_sync_status=excluded.stage_sync_status, stage_sync_attempts=excluded.stage_sync_attempts,
			stage_sync_started_at=excluded.stage_sync_started_at, stage_sync_finished_at=excluded.stage_sync_finished_at,
			stage_build_units_status=excluded.stage_build_units_status, stage_build_units_attempts=excluded.stage_build_units_attempts,
			stage_build_units_started_at=excluded.stage_build_units_started_at, stage_build_units_finished_at=excluded.stage_build_units_finished_at,
			stage_build_chunks_status=excluded.stage_build_chunks_status, stage_build_chunks_attempts=excluded.stage_build_chunks_attempts,
			stage_build_chunks_started_at=excluded.stage_build_chunks_started_at, stage_build_chunks_finished_at=excluded.stage_build_chunks_finished_at,
			stage_index_status=excluded.stage_index_status, stage_index_attempts=excluded.stage_index_attempts,
			stage_index_started_at=excluded.stage_index_started_at, stage_index_finished_at=excluded.stage_index_finished_at,
			last_error_message=excluded.last_error_message, last_seen_at=excluded.last_seen_at,
			last_started_at=excluded.last_started_at, last_finished_at=excluded.last_finished_at`
	_, err := r.pool.Exec(ctx, q, s.IDNorma, s.Status,
		sy.Status, sy.Attempts, sy.StartedAt, sy.FinishedAt,
		bu.Status, bu.Attempts, bu.StartedAt, bu.FinishedAt,
		bc.Status, bc.Attempts, bc.StartedAt, bc.FinishedAt,
		ix.Status, ix.Attempts, ix.StartedAt, ix.FinishedAt,
		s.LastErrorMessage, s.LastSeenAt, s.LastStartedAt, s.LastFinishedAt)
	return err
}

// Get reads a sync state row, coercing any legacy status values.
func (r *SyncStateRepo) Get(ctx context.Context, idNorma string) (SyncState, bool, error) {
	const q = `SELECT id_norma, status,
		stage_sync_status, stage_sync_attempts, stage_sync_started_at, stage_sync_finished_at,
		stage_build_units_status, stage_build_units_attempts, stage_build_units_started_at, stage_build_units_finished_at,
		stage_build_chunks_status, stage_build_chunks_attempts, stage_build_chunks_started_at, stage_build_chunks_finished_at,
		stage_index_status, stage_index_attempts, stage_index_started_at, stage_index_finished_at,
		last_error_message, last_seen_at, last_started_at, last_finished_at
		FROM sync_state WHERE id_norma=$1`
	row := r.pool.QueryRow(ctx, q, idNorma)

	var s SyncState
	var status, sySt, buSt, bcSt, ixSt string
	var sy, bu, bc, ix StageState
	err := row.Scan(&s.IDNorma, &status,
		&sySt, &sy.Attempts, &sy.StartedAt, &sy.FinishedAt,
		&buSt, &bu.Attempts, &bu.StartedAt, &bu.FinishedAt,
		&bcSt, &bc.Attempts, &bc.StartedAt, &bc.FinishedAt,
		&ixSt, &ix.Attempts, &ix.StartedAt, &ix.FinishedAt,
		&s.LastErrorMessage, &s.LastSeenAt, &s.LastStartedAt, &s.LastFinishedAt)
	if err != nil {
		if isNoRows(err) {
			return SyncState{}, false, nil
		}
		return SyncState{}, false, err
	}

	sy.Status, bu.Status, bc.Status, ix.Status = CoerceLegacyStatus(sySt), CoerceLegacyStatus(buSt), CoerceLegacyStatus(bcSt), CoerceLegacyStatus(ixSt)
	s.Status = CoerceLegacyStatus(status)
	s.Stages = map[Stage]StageState{
		StageSync:        sy,
		StageBuildUnits:  bu,
		StageBuildChunks: bc,
		StageIndex:       ix,
	}
	return s, true, nil
}

// ListByStageStatus scans for norms whose given stage carries status, used
// by the orchestrator's resume seed.
func (r *SyncStateRepo) ListByStageStatus(ctx context.Context, stage Stage, status RollupStatus) ([]string, error) {
	col := stageStatusColumn(stage)
	rows, err := r.pool.Query(ctx, `SELECT id_norma FROM sync_state WHERE `+col+` = $1`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func stageStatusColumn(stage Stage) string {
	switch stage {
	case StageSync:
		return "stage_sync_status"
	case StageBuildUnits:
		return "stage_build_units_status"
	case StageBuildChunks:
		return "stage_build_chunks_status"
	case StageIndex:
		return "stage_index_status"
	default:
		return "stage_sync_status"
	}
}
