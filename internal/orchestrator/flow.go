package orchestrator

import "context"

// EnqueueResult reports one stage's enqueue outcome, so seeds can surface
// duplicates without treating them as errors (spec §4.9 "Dedup contract").
type EnqueueResult struct {
	Stage    Stage
	Enqueued bool
	Reason   string
}

// EnqueueNormaFlow enqueues one job per stage in startFromStage's downstream
// chain, each onto its own queue under the deterministic id JobID(stage,
// idNorma) (spec §4.9 "Flow").
func EnqueueNormaFlow(ctx context.Context, queues map[Stage]*Queue, idNorma string, trigger Trigger, startFromStage Stage) ([]EnqueueResult, error) {
	chain := stagesFrom(startFromStage)
	results := make([]EnqueueResult, 0, len(chain))
	for _, stage := range chain {
		q, ok := queues[stage]
		if !ok {
			continue
		}
		job := Job{
			ID:      JobID(stage, idNorma),
			Stage:   stage,
			IDNorma: idNorma,
			Trigger: trigger,
		}
		enqueued, err := q.Enqueue(ctx, job)
		if err != nil {
			return results, err
		}
		reason := ""
		if !enqueued {
			reason = "duplicate"
		}
		results = append(results, EnqueueResult{Stage: stage, Enqueued: enqueued, Reason: reason})
	}
	return results, nil
}
