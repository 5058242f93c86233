// Command ingestor discovers norms from the source API and syncs their
// index/bloque/version history into the document store and object store
// (spec §6 "ingestor discover", "ingestor sync"), following the teacher's
// cmd/embedctl style: stdlib flag, manual subcommand dispatch,
// config.Load() once at startup, log.Fatalf on fatal config errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"norma-pipeline/internal/config"
	"norma-pipeline/internal/logging"
	"norma-pipeline/internal/orchestrator"
	"norma-pipeline/internal/pipelinecli"
	"norma-pipeline/internal/sourceclient"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatal("usage: ingestor <discover|sync> [flags]")
	}
	sub := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch sub {
	case "discover":
		runDiscover(cfg, args)
	case "sync":
		runSync(cfg, args)
	default:
		log.Fatalf("ingestor: unknown subcommand %q", sub)
	}
}

func applyGlobalFlags(cfg *config.Config, dryRun, verbose bool) {
	cfg.DryRun = dryRun || cfg.DryRun
	cfg.Verbose = verbose || cfg.Verbose
	if cfg.Verbose {
		logging.Log.SetLevel(logrus.DebugLevel)
	}
}

func runDiscover(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	from := fs.String("from", "", "CLI date YYYY-MM-DD")
	to := fs.String("to", "", "CLI date YYYY-MM-DD")
	limit := fs.Int("limit", 0, "stop after this many items (0 = unbounded)")
	batchSize := fs.Int("batch-size", 50, "page size per discover call")
	query := fs.String("query", "", "free-text query passed through to discover")
	dryRun := fs.Bool("dry-run", false, "no writes to the document store")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)
	applyGlobalFlags(&cfg, *dryRun, *verbose)

	wireFrom, err := pipelinecli.WireDate(*from)
	if err != nil {
		log.Fatalf("ingestor: %v", err)
	}
	wireTo, err := pipelinecli.WireDate(*to)
	if err != nil {
		log.Fatalf("ingestor: %v", err)
	}

	deps, err := pipelinecli.Wire(context.Background(), cfg)
	if err != nil {
		log.Fatalf("ingestor: wire dependencies: %v", err)
	}
	defer deps.Close()

	ctx := context.Background()
	now := time.Now()
	seen := 0
	discovered := 0
	for page := 0; *limit <= 0 || seen < *limit; page++ {
		items, err := deps.Source.Discover(ctx, sourceclient.DiscoverParams{
			From: wireFrom, To: wireTo, Query: *query,
			Offset: page * (*batchSize), Limit: *batchSize,
		})
		if err != nil {
			log.Fatalf("ingestor: discover: %v", err)
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			if *limit > 0 && seen >= *limit {
				break
			}
			seen++
			if !cfg.DryRun {
				if _, err := deps.Store.Normas.UpsertFromDiscover(ctx, item, now, cfg.DryRun); err != nil {
					log.Fatalf("ingestor: upsert norma %s: %v", item.IDNorma, err)
				}
				if _, err := deps.Store.SyncStates.EnsureNormaPending(ctx, item.IDNorma, now, nil); err != nil {
					log.Fatalf("ingestor: ensure sync state %s: %v", item.IDNorma, err)
				}
			}
			discovered++
		}
	}

	printStats(map[string]any{"seen": seen, "discovered": discovered, "dryRun": cfg.DryRun})
}

func runSync(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	from := fs.String("from", "", "CLI date YYYY-MM-DD")
	to := fs.String("to", "", "CLI date YYYY-MM-DD")
	all := fs.Bool("all", false, "sync every norm discovered in the range")
	normaIDs := fs.String("norma-id", "", "comma-separated explicit norm ids")
	maxNormas := fs.Int("max-normas", 0, "cap the number of norms synced (0 = unbounded)")
	concurrency := fs.Int("concurrency", 4, "bounded in-process fan-out")
	discoverFirst := fs.Bool("discover-first", false, "run discover against the range before syncing")
	failOnErrors := fs.Bool("fail-on-errors", false, "non-zero exit if any norm failed")
	dryRun := fs.Bool("dry-run", false, "no writes to the document store, object store")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)
	applyGlobalFlags(&cfg, *dryRun, *verbose)

	ctx := context.Background()
	deps, err := pipelinecli.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("ingestor: wire dependencies: %v", err)
	}
	defer deps.Close()

	var ids []string
	switch {
	case *normaIDs != "":
		for _, id := range strings.Split(*normaIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	case *all || *discoverFirst:
		ids, err = discoverIDs(ctx, deps, *from, *to, *maxNormas)
		if err != nil {
			log.Fatalf("ingestor: discover-first: %v", err)
		}
	default:
		log.Fatal("ingestor: sync requires --norma-id, --all, or --discover-first")
	}
	if *maxNormas > 0 && len(ids) > *maxNormas {
		ids = ids[:*maxNormas]
	}

	workers := &orchestrator.StageWorkers{
		Store:     deps.Store,
		Source:    deps.Source,
		Objects:   deps.Objects,
		Extractor: pipelinecli.TextExtractorFunc(cfg),
		Chunk:     cfg.Chunk,
		Indexer:   deps.Indexer,
		DryRun:    cfg.DryRun,
	}

	results := pipelinecli.RunBounded(ctx, ids, *concurrency, workers.Sync)
	stats, failed := pipelinecli.Summarize(results)
	printStats(map[string]any{"total": stats.Total, "succeeded": stats.Succeeded, "failed": stats.Failed, "failedIds": failed, "dryRun": cfg.DryRun})

	if *failOnErrors && stats.Failed > 0 {
		os.Exit(1)
	}
}

// discoverIDs pages through discover across [from, to] and upserts each
// norm as pending, returning the full set of ids found.
func discoverIDs(ctx context.Context, deps *pipelinecli.Deps, from, to string, maxNormas int) ([]string, error) {
	wireFrom, err := pipelinecli.WireDate(from)
	if err != nil {
		return nil, err
	}
	wireTo, err := pipelinecli.WireDate(to)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var ids []string
	const pageSize = 50
	for page := 0; maxNormas <= 0 || len(ids) < maxNormas; page++ {
		items, err := deps.Source.Discover(ctx, sourceclient.DiscoverParams{From: wireFrom, To: wireTo, Offset: page * pageSize, Limit: pageSize})
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

func printStats(v map[string]any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "ingestor: encode stats: %v\n", err)
	}
}
