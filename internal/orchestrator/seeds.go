package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"norma-pipeline/internal/logging"
	"norma-pipeline/internal/persistence/documents"
	"norma-pipeline/internal/sourceclient"
	"norma-pipeline/internal/territorio"
)

// Queues bundles the four per-stage queues a flow is enqueued onto.
type Queues struct {
	Sync         *Queue
	Build        *Queue
	Index        *Queue
	Orchestrator *Queue
}

// Depth reports one stage's current queue depth, the lookup GET
// /pipeline/stats uses to report backpressure alongside throughput.
func (q Queues) Depth(ctx context.Context, stage Stage) (int, error) {
	queue, ok := q.byStage()[stage]
	if !ok {
		return 0, fmt.Errorf("orchestrator: no queue for stage %q", stage)
	}
	return queue.Depth(ctx)
}

func (q Queues) byStage() map[Stage]*Queue {
	return map[Stage]*Queue{
		StageSync:        q.Sync,
		StageBuildUnits:  q.Build,
		StageBuildChunks: q.Build,
		StageIndex:       q.Index,
	}
}

// waitForQueueCapacity polls depth at 1s granularity until every named
// queue is at or under 4x its stage concurrency, honoring ctx cancellation
// (spec §4.9 "Backpressure contract").
func waitForQueueCapacity(ctx context.Context, queues map[Stage]*Queue, concurrency map[Stage]int) error {
	for {
		over := false
		for stage, q := range queues {
			depth, err := q.Depth(ctx)
			if err != nil {
				return err
			}
			limit := 4 * concurrency[stage]
			if limit <= 0 {
				limit = 4
			}
			if depth > limit {
				over = true
				break
			}
		}
		if !over {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// BackfillParams configures one backfill seed run.
type BackfillParams struct {
	From, To     string
	PageSize     int
	MaxPages     int
	Concurrency  map[Stage]int
	EnsureCCAA   bool
}

// BackfillSeed discovers norms page by page, upserts each, and enqueues its
// full flow starting at sync, blocking on backpressure before each norm's enqueue (spec
// §4.9 "Seeds: Backfill").
func BackfillSeed(ctx context.Context, source *sourceclient.Client, store *documents.Store, queues Queues, p BackfillParams) (int, error) {
	log := logging.Log.WithField("seed", "backfill")
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	byStage := queues.byStage()
	count := 0
	for page := 0; p.MaxPages <= 0 || page < p.MaxPages; page++ {
		items, err := source.Discover(ctx, sourceclient.DiscoverParams{
			From:   p.From,
			To:     p.To,
			Offset: page * pageSize,
			Limit:  pageSize,
		})
		if err != nil {
			return count, fmt.Errorf("orchestrator: backfill discover: %w", err)
		}
		if len(items) == 0 {
			break
		}

		now := time.Now()
		for _, item := range items {
			norma, err := store.Normas.UpsertFromDiscover(ctx, item, now, false)
			if err != nil {
				return count, fmt.Errorf("orchestrator: backfill upsert norma: %w", err)
			}
			if p.EnsureCCAA && norma.Territorio.Tipo == territorio.TipoAutonomico {
				if err := store.Territorios.Ensure(ctx, norma.Territorio, now); err != nil {
					return count, fmt.Errorf("orchestrator: backfill ensure territorio: %w", err)
				}
			}
			if _, err := store.SyncStates.EnsureNormaPending(ctx, norma.IDNorma, now, nil); err != nil {
				return count, fmt.Errorf("orchestrator: backfill ensure sync state: %w", err)
			}

			if err := waitForQueueCapacity(ctx, byStage, p.Concurrency); err != nil {
				return count, err
			}
			results, err := EnqueueNormaFlow(ctx, byStage, norma.IDNorma, TriggerBackfill, StageSync)
			if err != nil {
				return count, fmt.Errorf("orchestrator: backfill enqueue flow: %w", err)
			}
			for _, r := range results {
				if !r.Enqueued {
					log.WithField("id_norma", norma.IDNorma).WithField("stage", string(r.Stage)).Debug("orchestrator: duplicate enqueue")
				}
			}
			count++
		}
	}
	return count, nil
}

// ResumeParams configures one resume seed run.
type ResumeParams struct {
	Limit       int
	Concurrency map[Stage]int
}

// ResumeSeed finds norms whose rollup is not ok, resets the earliest
// non-ok stage forward, and re-enqueues the flow from there (spec §4.9
// "Seeds: Resume").
func ResumeSeed(ctx context.Context, store *documents.Store, queues Queues, p ResumeParams) (int, error) {
	candidates, err := resumeCandidates(ctx, store)
	if err != nil {
		return 0, err
	}
	sort.Strings(candidates)
	if p.Limit > 0 && len(candidates) > p.Limit {
		candidates = candidates[:p.Limit]
	}

	byStage := queues.byStage()
	count := 0
	for _, idNorma := range candidates {
		state, found, err := store.SyncStates.Get(ctx, idNorma)
		if err != nil {
			return count, fmt.Errorf("orchestrator: resume get sync state: %w", err)
		}
		if !found {
			continue
		}
		startStage, ok := earliestNonOKStage(state)
		if !ok {
			continue
		}

		resetFrom := toOrchestratorStages(startStage)
		if _, err := store.SyncStates.EnsureNormaPending(ctx, idNorma, time.Now(), resetFrom); err != nil {
			return count, fmt.Errorf("orchestrator: resume reset stages: %w", err)
		}

		if err := waitForQueueCapacity(ctx, byStage, p.Concurrency); err != nil {
			return count, err
		}
		if _, err := EnqueueNormaFlow(ctx, byStage, idNorma, TriggerResume, toOrchStage(startStage)); err != nil {
			return count, fmt.Errorf("orchestrator: resume enqueue flow: %w", err)
		}
		count++
	}
	return count, nil
}

var documentsStageOrder = []documents.Stage{
	documents.StageSync, documents.StageBuildUnits, documents.StageBuildChunks, documents.StageIndex,
}

// earliestNonOKStage returns the first stage in pipeline order whose status
// is not ok; ok is false if every stage is already ok.
func earliestNonOKStage(s documents.SyncState) (documents.Stage, bool) {
	for _, stage := range documentsStageOrder {
		if s.Stages[stage].Status != documents.StatusOK {
			return stage, true
		}
	}
	return "", false
}

func toOrchStage(s documents.Stage) Stage {
	switch s {
	case documents.StageSync:
		return StageSync
	case documents.StageBuildUnits:
		return StageBuildUnits
	case documents.StageBuildChunks:
		return StageBuildChunks
	case documents.StageIndex:
		return StageIndex
	default:
		return StageSync
	}
}

func toOrchestratorStages(from documents.Stage) []documents.Stage {
	pos := 0
	for i, s := range documentsStageOrder {
		if s == from {
			pos = i
			break
		}
	}
	return documentsStageOrder[pos:]
}

// resumeCandidates unions the ids whose terminal index stage is not ok,
// deduping across the three non-ok statuses (spec §4.9 "resume targets any
// norm not fully indexed").
func resumeCandidates(ctx context.Context, store *documents.Store) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, status := range []documents.RollupStatus{documents.StatusPending, documents.StatusRunning, documents.StatusFailed} {
		ids, err := store.SyncStates.ListByStageStatus(ctx, documents.StageIndex, status)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: resume scan %s: %w", status, err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}
