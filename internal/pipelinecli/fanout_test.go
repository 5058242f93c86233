package pipelinecli

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunBoundedCollectsEveryResult(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	var failed atomic.Bool
	results := RunBounded(context.Background(), ids, 2, func(_ context.Context, id string) error {
		if id == "c" {
			failed.Store(true)
			return errors.New("boom")
		}
		return nil
	})

	assert.Len(t, results, len(ids))
	stats, failedIDs := Summarize(results)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{"c"}, failedIDs)
	assert.True(t, failed.Load())
}

func TestRunBoundedHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunBounded(ctx, []string{"x", "y"}, 1, func(_ context.Context, _ string) error {
		t.Fatal("fn must not run once the context is already cancelled")
		return nil
	})

	stats, _ := Summarize(results)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Failed)
}

func TestRunBoundedDefaultsConcurrencyToOne(t *testing.T) {
	results := RunBounded(context.Background(), []string{"a"}, 0, func(_ context.Context, _ string) error {
		return nil
	})
	stats, _ := Summarize(results)
	assert.Equal(t, 1, stats.Succeeded)
}
