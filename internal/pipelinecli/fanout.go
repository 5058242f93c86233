package pipelinecli

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"norma-pipeline/internal/logging"
)

// RunResult is one id's outcome from RunBounded.
type RunResult struct {
	IDNorma string
	Err     error
}

// Stats summarizes a RunBounded pass, the shape every CLI command prints
// as its closing stats JSON (spec §6 "CLI commands print their stats
// JSON").
type Stats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunBounded runs fn once per id with at most concurrency in flight at a
// time, collecting one RunResult per id regardless of error (spec §5
// "fine" scheduling level: per-norm fan-out bounded by --concurrency).
// Cancelling ctx stops launching new work; in-flight calls still finish.
func RunBounded(ctx context.Context, ids []string, concurrency int, fn func(ctx context.Context, idNorma string) error) []RunResult {
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([]RunResult, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = RunResult{IDNorma: id, Err: err}
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer sem.Release(1)
			err := fn(ctx, id)
			if err != nil {
				logging.Log.WithField("id_norma", id).WithError(err).Error("pipelinecli: run failed")
			}
			results[i] = RunResult{IDNorma: id, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}

// Summarize reduces a RunResult slice into Stats and the list of failed ids.
func Summarize(results []RunResult) (Stats, []string) {
	stats := Stats{Total: len(results)}
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			stats.Failed++
			failed = append(failed, r.IDNorma)
			continue
		}
		stats.Succeeded++
	}
	return stats, failed
}
