// Command indexer embeds built chunks and writes them as vector points,
// pruning stale points (spec §6 "indexer", §4.8), following the teacher's
// cmd/embedctl style of a single resolved-config action.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"norma-pipeline/internal/config"
	"norma-pipeline/internal/indexer"
	"norma-pipeline/internal/logging"
	"norma-pipeline/internal/pipelinecli"
)

func main() {
	log.SetFlags(0)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	fs := flag.NewFlagSet("indexer", flag.ExitOnError)
	batchSize := fs.Int("batch-size", 100, "chunks per embed/upsert batch")
	limit := fs.Int("limit", 0, "cap chunks processed this run (0 = unbounded; disables cleanup when set)")
	onlyNorma := fs.String("only-norma", "", "restrict to a single norm id")
	embedConcurrency := fs.Int("embed-concurrency", 4, "bounded in-process embed fan-out")
	noCleanup := fs.Bool("no-cleanup", false, "skip pruning vector points with no surviving chunk")
	cleanupScrollBatchSize := fs.Int("cleanup-scroll-batch-size", 256, "scroll page size during cleanup")
	cleanupDeleteBatchSize := fs.Int("cleanup-delete-batch-size", 256, "delete batch size during cleanup")
	failOnErrors := fs.Bool("fail-on-errors", false, "non-zero exit if any chunk failed")
	dryRun := fs.Bool("dry-run", false, "no writes to the vector store")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(os.Args[1:])

	cfg.DryRun = *dryRun || cfg.DryRun
	cfg.Verbose = *verbose || cfg.Verbose
	if cfg.Verbose {
		logging.Log.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()
	deps, err := pipelinecli.Wire(ctx, cfg)
	if err != nil {
		log.Fatalf("indexer: wire dependencies: %v", err)
	}
	defer deps.Close()

	opt := indexer.Options{
		BatchSize:              *batchSize,
		EmbedConcurrency:       *embedConcurrency,
		OnlyNorma:              *onlyNorma,
		Limit:                  *limit,
		CleanupEnabled:         !*noCleanup,
		CleanupScrollBatchSize: *cleanupScrollBatchSize,
		CleanupDeleteBatchSize: *cleanupDeleteBatchSize,
		DryRun:                 cfg.DryRun,
	}

	stats, err := deps.Indexer.Run(ctx, opt)
	if err != nil {
		log.Fatalf("indexer: run: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		fmt.Fprintf(os.Stderr, "indexer: encode stats: %v\n", err)
	}

	if *failOnErrors && stats.Errors > 0 {
		os.Exit(1)
	}
}
