package orchestrator

import (
	"context"
	"time"

	"norma-pipeline/internal/logging"
	"norma-pipeline/internal/persistence/documents"
)

// StageWork performs one stage's actual work for one norm. stage lets a
// single worker serve a queue shared by more than one stage (q-build
// carries both build_units and build_chunks jobs).
type StageWork func(ctx context.Context, stage Stage, idNorma string) error

// toDocumentsStage maps a pipeline stage onto its sync-state counterpart.
// ok is false for StageOrchestrator, which carries no row in sync_state.
func toDocumentsStage(s Stage) (documents.Stage, bool) {
	switch s {
	case StageSync:
		return documents.StageSync, true
	case StageBuildUnits:
		return documents.StageBuildUnits, true
	case StageBuildChunks:
		return documents.StageBuildChunks, true
	case StageIndex:
		return documents.StageIndex, true
	default:
		return "", false
	}
}

// Worker drains one stage's queue with bounded concurrency, running Work for
// each job and reporting the outcome to both the sync-state machine and the
// broker (spec §4.9 "Stage workers").
type Worker struct {
	Stage       Stage
	Queue       *Queue
	Store       *documents.Store
	Options     JobOptions
	Concurrency int
	Limiter     RateLimiter
	Work        StageWork
	Stats       *StatsTracker // optional; nil disables throughput recording
}

// Run drains the queue until ctx is cancelled, honoring a drain-on-shutdown
// contract: in-flight jobs finish, nothing new starts (spec §5 "cancellation
// and shutdown").
func (w *Worker) Run(ctx context.Context) error {
	limiter := w.Limiter
	if limiter == nil {
		limiter = noopLimiter{}
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	log := logging.Log.WithField("stage", string(w.Stage))
	// drain blocks until every in-flight job has released its slot.
	drain := func() {
		for i := 0; i < concurrency; i++ {
			sem <- struct{}{}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return ctx.Err()
		default:
		}

		job, ok, err := w.Queue.Dequeue(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				drain()
				return ctx.Err()
			}
			log.WithError(err).Error("orchestrator: dequeue failed")
			continue
		}
		if !ok {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			drain()
			return err
		}

		sem <- struct{}{}
		go func(j Job) {
			defer func() { <-sem }()
			w.handle(ctx, j)
		}(job)
	}
}

// handle runs one job's skip/run/report cycle.
func (w *Worker) handle(ctx context.Context, j Job) {
	log := logging.Log.WithField("stage", string(j.Stage)).WithField("id_norma", j.IDNorma)
	now := time.Now()

	docStage, mapped := toDocumentsStage(j.Stage)
	if mapped {
		state, found, err := w.Store.SyncStates.Get(ctx, j.IDNorma)
		if err == nil && found {
			if ss, ok := state.Stages[docStage]; ok && ss.Status == documents.StatusOK {
				log.Info("orchestrator: skip, stage already ok")
				_ = w.Queue.Ack(ctx, j, w.Options)
				return
			}
		}
		if err := w.Store.SyncStates.MarkStageStart(ctx, j.IDNorma, docStage, now); err != nil {
			log.WithError(err).Error("orchestrator: mark stage start failed")
		}
	}

	err := w.Work(ctx, j.Stage, j.IDNorma)
	finishedAt := time.Now()

	if err != nil {
		log.WithError(err).Warn("orchestrator: stage work failed")
		if mapped {
			if markErr := w.Store.SyncStates.MarkStageFailure(ctx, j.IDNorma, docStage, err.Error(), finishedAt); markErr != nil {
				log.WithError(markErr).Error("orchestrator: mark stage failure failed")
			}
		}
		if failErr := w.Queue.Fail(ctx, j, w.Options); failErr != nil {
			log.WithError(failErr).Error("orchestrator: queue fail bookkeeping failed")
		}
		if w.Stats != nil && j.Attempt+1 >= w.Options.Attempts {
			w.Stats.RecordFailed(j.Stage, finishedAt)
		}
		return
	}

	if mapped {
		if markErr := w.Store.SyncStates.MarkStageSuccess(ctx, j.IDNorma, docStage, finishedAt); markErr != nil {
			log.WithError(markErr).Error("orchestrator: mark stage success failed")
		}
	}
	if ackErr := w.Queue.Ack(ctx, j, w.Options); ackErr != nil {
		log.WithError(ackErr).Error("orchestrator: queue ack failed")
	}
	if w.Stats != nil {
		w.Stats.RecordCompleted(j.Stage, finishedAt)
	}
}
