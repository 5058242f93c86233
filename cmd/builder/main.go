// Command builder reconstructs retrieval units from synced block/version
// history and splits them into semantic chunks (spec §6 "builder
// build-unidades", "build-chunks", "build-all", "rag-check"), following the
// teacher's cmd/embedctl style of stdlib flag and manual subcommand dispatch.
package main

import (
	"bufio"
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
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatal("usage: builder <build-unidades|build-chunks|build-all|rag-check> [flags]")
	}
	sub := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch sub {
	case "build-unidades":
		runBuildUnidades(cfg, args)
	case "build-chunks":
		runBuildChunks(cfg, args)
	case "build-all":
		runBuildAll(cfg, args)
	case "rag-check":
		runRAGCheck(cfg, args)
	default:
		log.Fatalf("builder: unknown subcommand %q", sub)
	}
}

func applyGlobalFlags(cfg *config.Config, dryRun, verbose bool) {
	cfg.DryRun = dryRun || cfg.DryRun
	cfg.Verbose = verbose || cfg.Verbose
	if cfg.Verbose {
		logging.Log.SetLevel(logrus.DebugLevel)
	}
}

// selectionFlags holds the norm-selection flags shared by build-unidades and
// build-chunks (spec §6).
type selectionFlags struct {
	from        *string
	to          *string
	all         *bool
	onlyNorma   *string
	concurrency *int
	failOnErr   *bool
	dryRun      *bool
	verbose     *bool
}

func addSelectionFlags(fs *flag.FlagSet) selectionFlags {
	return selectionFlags{
		from:        fs.String("from", "", "CLI date YYYY-MM-DD"),
		to:          fs.String("to", "", "CLI date YYYY-MM-DD"),
		all:         fs.Bool("all", false, "select every norm in range"),
		onlyNorma:   fs.String("only-norma", "", "restrict to a single norm id"),
		concurrency: fs.Int("concurrency", 4, "bounded in-process fan-out"),
		failOnErr:   fs.Bool("fail-on-errors", false, "non-zero exit if any norm failed"),
		dryRun:      fs.Bool("dry-run", false, "no writes"),
		verbose:     fs.Bool("verbose", false, "debug logging"),
	}
}

func (s selectionFlags) resolveIDs(ctx context.Context, deps *pipelinecli.Deps) ([]string, error) {
	if *s.onlyNorma != "" {
		return []string{*s.onlyNorma}, nil
	}
	if !*s.all {
		return nil, fmt.Errorf("builder: requires --only-norma or --all")
	}
	from, err := parseRangeBound(*s.from)
	if err != nil {
		return nil, err
	}
	to, err := parseRangeBound(*s.to)
	if err != nil {
		return nil, err
	}
	return deps.Store.Normas.ListIDs(ctx, from, to)
}

func parseRangeBound(cliDate string) (*time.Time, error) {
	if cliDate == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", cliDate)
	if err != nil {
		return nil, fmt.Errorf("builder: invalid date %q, want YYYY-MM-DD: %w", cliDate, err)
	}
	return &t, nil
}

func runBuildUnidades(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("build-unidades", flag.ExitOnError)
	sel := addSelectionFlags(fs)
	reset := fs.Bool("reset", false, "delete existing units for the selected norm(s) before rebuilding")
	noConfirm := fs.Bool("no-confirm", false, "skip the --reset confirmation prompt")
	dropLegacy := fs.Bool("drop-legacy", false, "accepted for compatibility; this pipeline has no legacy chunk collection to drop")
	_ = fs.Parse(args)
	applyGlobalFlags(&cfg, *sel.dryRun, *sel.verbose)

	if *dropLegacy {
		logging.Log.Warn("builder: --drop-legacy is a no-op, no legacy chunk collection exists in this pipeline")
	}

	ctx := context.Background()
	deps, err := pipelinecli.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("builder: wire dependencies: %v", err)
	}
	defer deps.Close()

	ids, err := sel.resolveIDs(ctx, deps)
	if err != nil {
		log.Fatalf("builder: %v", err)
	}

	if *reset && !cfg.DryRun {
		if !*noConfirm && !confirm(fmt.Sprintf("reset %d norm(s) units before rebuild", len(ids))) {
			log.Fatal("builder: reset aborted")
		}
		for _, id := range ids {
			if _, err := deps.Store.Unidades.DeleteNotIn(ctx, id, []string{}); err != nil {
				log.Fatalf("builder: reset units for %s: %v", id, err)
			}
		}
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

	results := pipelinecli.RunBounded(ctx, ids, *sel.concurrency, workers.BuildUnits)
	stats, failed := pipelinecli.Summarize(results)
	printStats(map[string]any{"total": stats.Total, "succeeded": stats.Succeeded, "failed": stats.Failed, "failedIds": failed, "dryRun": cfg.DryRun})

	if *sel.failOnErr && stats.Failed > 0 {
		os.Exit(1)
	}
}

func runBuildChunks(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("build-chunks", flag.ExitOnError)
	sel := addSelectionFlags(fs)
	method := fs.String("method", "", "override chunking method (recursive|simple)")
	chunkSize := fs.Int("chunk-size", 0, "override chunk size (0 = use config)")
	overlap := fs.Int("overlap", -1, "override chunk overlap (-1 = use config)")
	_ = fs.Parse(args)
	applyGlobalFlags(&cfg, *sel.dryRun, *sel.verbose)

	if *method != "" {
		cfg.Chunk.Method = *method
	}
	if *chunkSize > 0 {
		cfg.Chunk.Size = *chunkSize
	}
	if *overlap >= 0 {
		cfg.Chunk.Overlap = *overlap
	}

	ctx := context.Background()
	deps, err := pipelinecli.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("builder: wire dependencies: %v", err)
	}
	defer deps.Close()

	ids, err := sel.resolveIDs(ctx, deps)
	if err != nil {
		log.Fatalf("builder: %v", err)
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

	results := pipelinecli.RunBounded(ctx, ids, *sel.concurrency, workers.BuildChunks)
	stats, failed := pipelinecli.Summarize(results)
	printStats(map[string]any{"total": stats.Total, "succeeded": stats.Succeeded, "failed": stats.Failed, "failedIds": failed, "dryRun": cfg.DryRun})

	if *sel.failOnErr && stats.Failed > 0 {
		os.Exit(1)
	}
}

// runBuildAll runs build-unidades then build-chunks over the same flag set
// (spec §6 "builder build-all runs units then chunks").
func runBuildAll(cfg config.Config, args []string) {
	runBuildUnidades(cfg, args)
	runBuildChunks(cfg, args)
}

// runRAGCheck reports the retrieval-readiness of one norm: its sync rollup,
// the lineages and latest units it resolved to, the chunks built from those
// units, and whether the vector store holds a point per chunk (spec §6
// "builder rag-check --id_norma").
func runRAGCheck(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("rag-check", flag.ExitOnError)
	idNorma := fs.String("id_norma", "", "norm id to check")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(args)
	applyGlobalFlags(&cfg, false, *verbose)
	if *idNorma == "" {
		log.Fatal("builder: rag-check requires --id_norma")
	}

	ctx := context.Background()
	deps, err := pipelinecli.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("builder: wire dependencies: %v", err)
	}
	defer deps.Close()

	report := map[string]any{"id_norma": *idNorma}

	syncState, found, err := deps.Store.SyncStates.Get(ctx, *idNorma)
	if err != nil {
		log.Fatalf("builder: rag-check: sync state: %v", err)
	}
	report["sync_state_found"] = found
	if found {
		report["sync_status"] = syncState.Status
		report["sync_stages"] = syncState.Stages
	}

	lineages, err := deps.Store.Unidades.DistinctLineageKeys(ctx, *idNorma)
	if err != nil {
		log.Fatalf("builder: rag-check: lineage keys: %v", err)
	}
	report["lineage_count"] = len(lineages)

	var latestUnits []string
	var headingOnly, skipped int
	chunkCount := 0
	for _, lineage := range lineages {
		units, err := deps.Store.Unidades.ListByLineage(ctx, lineage)
		if err != nil {
			log.Fatalf("builder: rag-check: list by lineage %s: %v", lineage, err)
		}
		for _, u := range units {
			if !u.IsLatest {
				continue
			}
			latestUnits = append(latestUnits, u.IDUnidad)
			if u.IsHeadingOnly {
				headingOnly++
			}
			if u.SkipRetrieval {
				skipped++
			}
			chunks, err := deps.Store.Chunks.ListByUnidad(ctx, u.IDUnidad)
			if err != nil {
				log.Fatalf("builder: rag-check: chunks for %s: %v", u.IDUnidad, err)
			}
			chunkCount += len(chunks)
		}
	}
	report["latest_unit_count"] = len(latestUnits)
	report["heading_only_count"] = headingOnly
	report["skip_retrieval_count"] = skipped
	report["chunk_count"] = chunkCount

	pointIDs, err := deps.Vectors.ScrollByNorma(ctx, *idNorma)
	if err != nil {
		log.Fatalf("builder: rag-check: scroll vector points: %v", err)
	}
	report["vector_point_count"] = len(pointIDs)
	report["point_chunk_delta"] = chunkCount - len(pointIDs)

	printStats(report)
}

func confirm(action string) bool {
	fmt.Fprintf(os.Stderr, "builder: %s. Continue? [y/N] ", action)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

func printStats(v map[string]any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "builder: encode stats: %v\n", err)
	}
}
