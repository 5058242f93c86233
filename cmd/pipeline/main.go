// Command pipeline runs the orchestrator: seeding backfill/resume flows
// onto the four Redis queues, draining them with bounded stage workers, and
// serving the retrieval HTTP surface alongside /pipeline/stats (spec §6
// "pipeline backfill|resume|stop|stats", §4.9), following the teacher's
// cmd/embedctl style of a resolved config plus manual subcommand dispatch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"norma-pipeline/internal/answerer"
	"norma-pipeline/internal/config"
	"norma-pipeline/internal/httpapi"
	"norma-pipeline/internal/logging"
	"norma-pipeline/internal/orchestrator"
	"norma-pipeline/internal/pipelinecli"
	"norma-pipeline/internal/sourceclient"
)

// stopKey is the Redis sentinel `pipeline stop` sets and a running
// backfill/resume process polls to wind itself down early.
const stopKey = "pipeline:stop"

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatal("usage: pipeline <backfill|resume|stop|stats> [flags]")
	}
	sub := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch sub {
	case "backfill":
		runBackfill(cfg, args)
	case "resume":
		runResume(cfg, args)
	case "stop":
		runStop(cfg, args)
	case "stats":
		runStats(cfg, args)
	default:
		log.Fatalf("pipeline: unknown subcommand %q", sub)
	}
}

func applyGlobalFlags(cfg *config.Config, dryRun, verbose bool) {
	cfg.DryRun = dryRun || cfg.DryRun
	cfg.Verbose = verbose || cfg.Verbose
	if cfg.Verbose {
		logging.Log.SetLevel(logrus.DebugLevel)
	}
}

func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func dispatch(workers *orchestrator.StageWorkers) orchestrator.StageWork {
	return func(ctx context.Context, stage orchestrator.Stage, idNorma string) error {
		switch stage {
		case orchestrator.StageSync:
			return workers.Sync(ctx, idNorma)
		case orchestrator.StageBuildUnits:
			return workers.BuildUnits(ctx, idNorma)
		case orchestrator.StageBuildChunks:
			return workers.BuildChunks(ctx, idNorma)
		case orchestrator.StageIndex:
			return workers.Index(ctx, idNorma)
		default:
			return fmt.Errorf("pipeline: no work for stage %q", stage)
		}
	}
}

func buildQueues(client *redis.Client) orchestrator.Queues {
	return orchestrator.Queues{
		Sync:         orchestrator.NewQueue(client, string(orchestrator.StageSync.Queue())),
		Build:        orchestrator.NewQueue(client, string(orchestrator.StageBuildUnits.Queue())),
		Index:        orchestrator.NewQueue(client, string(orchestrator.StageIndex.Queue())),
		Orchestrator: orchestrator.NewQueue(client, string(orchestrator.StageOrchestrator.Queue())),
	}
}

// runWorkers starts one Worker per stage queue (q-build serves both
// build_units and build_chunks jobs via the stage-aware dispatcher) and
// blocks until ctx is cancelled or the stop sentinel is observed.
func runWorkers(ctx context.Context, cfg config.Config, deps *pipelinecli.Deps, queues orchestrator.Queues, client *redis.Client) {
	workers := &orchestrator.StageWorkers{
		Store:     deps.Store,
		Source:    deps.Source,
		Objects:   deps.Objects,
		Extractor: pipelinecli.TextExtractorFunc(cfg),
		Chunk:     cfg.Chunk,
		Indexer:   deps.Indexer,
		DryRun:    cfg.DryRun,
	}
	work := dispatch(workers)
	stats := orchestrator.NewStatsTracker()

	pool := []*orchestrator.Worker{
		{Stage: orchestrator.StageSync, Queue: queues.Sync, Store: deps.Store, Options: orchestrator.DefaultJobOptions(),
			Concurrency: cfg.Concurrency.Sync, Limiter: orchestrator.NewRateLimiter(cfg.Concurrency.SyncLimit.Max, cfg.Concurrency.SyncLimit.Duration), Work: work, Stats: stats},
		{Stage: orchestrator.StageBuildUnits, Queue: queues.Build, Store: deps.Store, Options: orchestrator.DefaultJobOptions(),
			Concurrency: cfg.Concurrency.Build, Limiter: orchestrator.NewRateLimiter(cfg.Concurrency.BuildLimit.Max, cfg.Concurrency.BuildLimit.Duration), Work: work, Stats: stats},
		{Stage: orchestrator.StageIndex, Queue: queues.Index, Store: deps.Store, Options: orchestrator.DefaultJobOptions(),
			Concurrency: cfg.Concurrency.Index, Limiter: orchestrator.NewRateLimiter(cfg.Concurrency.IndexLimit.Max, cfg.Concurrency.IndexLimit.Duration), Work: work, Stats: stats},
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	for _, w := range pool {
		wg.Add(1)
		go func(w *orchestrator.Worker) {
			defer wg.Done()
			if err := w.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				logging.Log.WithField("stage", string(w.Stage)).WithError(err).Error("pipeline: worker stopped")
			}
		}(w)
	}

	srv := startRetrievalServer(cfg, deps, stats, queues)
	defer stopRetrievalServer(srv)

	pollStop(workerCtx, client, cancelWorkers)
	wg.Wait()
}

// pollStop blocks until ctx is cancelled or the stop sentinel key appears,
// in which case it cancels cancelWorkers to begin a drain-on-shutdown
// (spec §6 "pipeline stop").
func pollStop(ctx context.Context, client *redis.Client, cancelWorkers context.CancelFunc) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := client.Exists(ctx, stopKey).Result()
			if err != nil {
				continue
			}
			if n > 0 {
				logging.Log.Info("pipeline: stop sentinel observed, draining")
				_ = client.Del(ctx, stopKey).Err()
				cancelWorkers()
				return
			}
		}
	}
}

func startRetrievalServer(cfg config.Config, deps *pipelinecli.Deps, stats *orchestrator.StatsTracker, queues orchestrator.Queues) *http.Server {
	handler := httpapi.NewServer(deps.Store, deps.Vectors, deps.Embedder, answerer.New(cfg.Answer), stats, queues, cfg.RAG)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.WithError(err).Error("pipeline: retrieval server stopped")
		}
	}()
	return srv
}

func stopRetrievalServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func runBackfill(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	from := fs.String("from", "", "CLI date YYYY-MM-DD")
	to := fs.String("to", "", "CLI date YYYY-MM-DD")
	pageSize := fs.Int("page-size", 50, "discover page size")
	maxPages := fs.Int("max-pages", 0, "cap discover pages (0 = unbounded)")
	concurrency := fs.Int("concurrency", 4, "inline fan-out (--inline only)")
	inline := fs.Bool("inline", false, "bypass the orchestrator worker and run every stage in this process")
	failOnErrors := fs.Bool("fail-on-errors", false, "non-zero exit if any norm failed (--inline only)")
	dryRun := fs.Bool("dry-run", false, "no writes with --inline; without it, norms, sync state and queue jobs are still written")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)
	applyGlobalFlags(&cfg, *dryRun, *verbose)

	ctx, cancel := rootContext()
	defer cancel()

	deps, err := pipelinecli.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("pipeline: wire dependencies: %v", err)
	}
	defer deps.Close()

	wireFrom, err := pipelinecli.WireDate(*from)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	wireTo, err := pipelinecli.WireDate(*to)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	if *inline {
		ids, err := discoverAll(ctx, deps, wireFrom, wireTo, *pageSize, *maxPages)
		if err != nil {
			log.Fatalf("pipeline: backfill discover: %v", err)
		}
		runInlineFlow(ctx, cfg, deps, ids, *concurrency, *failOnErrors)
		return
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()
	queues := buildQueues(client)

	count, err := orchestrator.BackfillSeed(ctx, deps.Source, deps.Store, queues, orchestrator.BackfillParams{
		From: wireFrom, To: wireTo, PageSize: *pageSize, MaxPages: *maxPages,
	})
	if err != nil {
		log.Fatalf("pipeline: backfill seed: %v", err)
	}
	logging.Log.WithField("enqueued", count).Info("pipeline: backfill seeded")

	runWorkers(ctx, cfg, deps, queues, client)
}

func runResume(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	limit := fs.Int("limit", 0, "cap resumed norms (0 = unbounded)")
	concurrency := fs.Int("concurrency", 4, "inline fan-out (--inline only)")
	inline := fs.Bool("inline", false, "bypass the orchestrator worker and run every stage in this process")
	dryRun := fs.Bool("dry-run", false, "no writes with --inline; without it, sync state and queue jobs are still written")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)
	applyGlobalFlags(&cfg, *dryRun, *verbose)

	ctx, cancel := rootContext()
	defer cancel()

	deps, err := pipelinecli.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("pipeline: wire dependencies: %v", err)
	}
	defer deps.Close()

	if *inline {
		ids, err := deps.Store.Normas.ListIDs(ctx, nil, nil)
		if err != nil {
			log.Fatalf("pipeline: resume list norms: %v", err)
		}
		runInlineFlow(ctx, cfg, deps, ids, *concurrency, false)
		return
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()
	queues := buildQueues(client)

	count, err := orchestrator.ResumeSeed(ctx, deps.Store, queues, orchestrator.ResumeParams{Limit: *limit})
	if err != nil {
		log.Fatalf("pipeline: resume seed: %v", err)
	}
	logging.Log.WithField("enqueued", count).Info("pipeline: resume seeded")

	runWorkers(ctx, cfg, deps, queues, client)
}

// runInlineFlow runs sync, build_units, build_chunks, index sequentially
// per id, bounded by concurrency across ids, bypassing Redis entirely
// (spec §6 "--inline to bypass the orchestrator worker").
func runInlineFlow(ctx context.Context, cfg config.Config, deps *pipelinecli.Deps, ids []string, concurrency int, failOnErrors bool) {
	workers := &orchestrator.StageWorkers{
		Store:     deps.Store,
		Source:    deps.Source,
		Objects:   deps.Objects,
		Extractor: pipelinecli.TextExtractorFunc(cfg),
		Chunk:     cfg.Chunk,
		Indexer:   deps.Indexer,
		DryRun:    cfg.DryRun,
	}
	results := pipelinecli.RunBounded(ctx, ids, concurrency, func(ctx context.Context, idNorma string) error {
		if err := workers.Sync(ctx, idNorma); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		if err := workers.BuildUnits(ctx, idNorma); err != nil {
			return fmt.Errorf("build_units: %w", err)
		}
		if err := workers.BuildChunks(ctx, idNorma); err != nil {
			return fmt.Errorf("build_chunks: %w", err)
		}
		if err := workers.Index(ctx, idNorma); err != nil {
			return fmt.Errorf("index: %w", err)
		}
		return nil
	})
	stats, failed := pipelinecli.Summarize(results)
	printStats(map[string]any{"total": stats.Total, "succeeded": stats.Succeeded, "failed": stats.Failed, "failedIds": failed, "dryRun": cfg.DryRun})
	if failOnErrors && stats.Failed > 0 {
		os.Exit(1)
	}
}

func discoverAll(ctx context.Context, deps *pipelinecli.Deps, from, to string, pageSize, maxPages int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	now := time.Now()
	var ids []string
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		items, err := deps.Source.Discover(ctx, sourceclient.DiscoverParams{From: from, To: to, Offset: page * pageSize, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			if _, err := deps.Store.Normas.UpsertFromDiscover(ctx, item, now, deps.Config.DryRun); err != nil {
				return nil, err
			}
			if !deps.Config.DryRun {
				if _, err := deps.Store.SyncStates.EnsureNormaPending(ctx, item.IDNorma, now, nil); err != nil {
					return nil, err
				}
			}
			ids = append(ids, item.IDNorma)
		}
	}
	return ids, nil
}

// runStop sets the Redis sentinel a running backfill/resume process polls
// to begin draining (spec §6 "pipeline stop").
func runStop(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	_ = fs.Parse(args)

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Set(ctx, stopKey, "1", time.Hour).Err(); err != nil {
		log.Fatalf("pipeline: stop: %v", err)
	}
	fmt.Println("pipeline: stop sentinel set")
}

// runStats reports live queue depths. Throughput counters live only inside
// a running `pipeline backfill|resume` process's in-memory StatsTracker and
// are exposed there via GET /pipeline/stats; this command only sees what
// Redis can tell an outside process: queue depth (spec §6 "pipeline stats").
func runStats(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	_ = fs.Parse(args)

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()
	queues := buildQueues(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	depths := map[string]int{}
	for _, stage := range []orchestrator.Stage{orchestrator.StageSync, orchestrator.StageBuildUnits, orchestrator.StageBuildChunks, orchestrator.StageIndex} {
		d, err := queues.Depth(ctx, stage)
		if err != nil {
			log.Fatalf("pipeline: stats: %v", err)
		}
		depths[string(stage)] = d
	}
	printStats(map[string]any{"queue_depths": depths})
}

func printStats(v map[string]any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: encode stats: %v\n", err)
	}
}
