// Package indexer embeds chunks and writes them as vector points, pruning
// points that no longer correspond to a persisted chunk (spec §4.8).
package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"norma-pipeline/internal/embedclient"
	"norma-pipeline/internal/logging"
	"norma-pipeline/internal/persistence/documents"
	"norma-pipeline/internal/persistence/vectorstore"
	"norma-pipeline/internal/vigencia"
)

// Options configures one indexing pass (spec §6 CLI surface, §4.8).
type Options struct {
	BatchSize              int
	EmbedConcurrency       int
	OnlyNorma              string
	Limit                  int // >0 disables cleanup, per spec §4.8 step 6
	CleanupEnabled         bool
	CleanupScrollBatchSize int
	CleanupDeleteBatchSize int
	DryRun                 bool
}

// Stats summarizes one run, returned to the caller of Run; the indexer CLI
// prints it.
type Stats struct {
	ChunksSeen    int
	Embedded      int
	SkippedUnchanged int
	Upserted      int
	Deleted       int
	Errors        int
}

// Indexer wires the document store, embedder, and vector store together.
type Indexer struct {
	Store    *documents.Store
	Embedder embedclient.Embedder
	Vectors  *vectorstore.Store
}

// Run executes one full indexing pass over the chunks selected by opt.
func (idx *Indexer) Run(ctx context.Context, opt Options) (Stats, error) {
	var stats Stats

	chunks, err := idx.selectChunks(ctx, opt)
	if err != nil {
		return stats, fmt.Errorf("indexer: select chunks: %w", err)
	}
	stats.ChunksSeen = len(chunks)
	if len(chunks) == 0 {
		return stats, nil
	}

	dim, err := embedclient.ProbeDimension(ctx, idx.Embedder)
	if err != nil {
		return stats, fmt.Errorf("indexer: probe dimension: %w", err)
	}
	if !opt.DryRun {
		if err := idx.Vectors.EnsureCollection(ctx, dim); err != nil {
			return stats, fmt.Errorf("indexer: ensure collection: %w", err)
		}
	}

	expected := make(map[string][]string) // id_norma -> expected chunk ids this pass touched

	batchSize := opt.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		n, err := idx.runBatch(ctx, batch, opt)
		stats.Embedded += n.embedded
		stats.SkippedUnchanged += n.skipped
		stats.Upserted += n.upserted
		stats.Errors += n.errors
		if err != nil {
			logging.Log.WithError(err).Error("indexer: batch failed")
		}
		for _, c := range batch {
			expected[c.IDNorma] = append(expected[c.IDNorma], c.IDChunk)
		}
	}

	if opt.CleanupEnabled && opt.Limit <= 0 && !opt.DryRun {
		deleted, err := idx.cleanup(ctx, opt, expected)
		stats.Deleted = deleted
		if err != nil {
			return stats, fmt.Errorf("indexer: cleanup: %w", err)
		}
	}

	return stats, nil
}

func (idx *Indexer) selectChunks(ctx context.Context, opt Options) ([]documents.ChunkSemantico, error) {
	// Chunks are selected per-unit and flattened, then sorted into the
	// canonical (id_norma, id_unidad, chunk_index) stream order.
	var all []documents.ChunkSemantico
	if opt.OnlyNorma == "" {
		cs, err := idx.Store.Chunks.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		all = cs
	} else {
		var unidadIDs []string
		ids, err := idx.Store.Unidades.DistinctLineageKeys(ctx, opt.OnlyNorma)
		if err != nil {
			return nil, err
		}
		for _, lineage := range ids {
			units, err := idx.Store.Unidades.ListByLineage(ctx, lineage)
			if err != nil {
				return nil, err
			}
			for _, u := range units {
				unidadIDs = append(unidadIDs, u.IDUnidad)
			}
		}
		for _, uid := range unidadIDs {
			cs, err := idx.Store.Chunks.ListByUnidad(ctx, uid)
			if err != nil {
				return nil, err
			}
			all = append(all, cs...)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].IDNorma != all[j].IDNorma {
			return all[i].IDNorma < all[j].IDNorma
		}
		if all[i].IDUnidad != all[j].IDUnidad {
			return all[i].IDUnidad < all[j].IDUnidad
		}
		return all[i].ChunkIndex < all[j].ChunkIndex
	})
	if opt.Limit > 0 && len(all) > opt.Limit {
		all = all[:opt.Limit]
	}
	return all, nil
}

type batchResult struct {
	embedded, skipped, upserted, errors int
}

func (idx *Indexer) runBatch(ctx context.Context, batch []documents.ChunkSemantico, opt Options) (batchResult, error) {
	var res batchResult

	chunkIDs := make([]string, len(batch))
	for i, c := range batch {
		chunkIDs[i] = c.IDChunk
	}
	existing, err := idx.Vectors.FetchExisting(ctx, chunkIDs)
	if err != nil {
		return res, err
	}

	points := make([]vectorstore.Point, len(batch))
	toEmbed := make([]int, 0, len(batch))
	for i, c := range batch {
		points[i] = buildPoint(c)
		if prev, ok := existing[c.IDChunk]; ok && prev.Unchanged(points[i]) {
			res.skipped++
			continue
		}
		toEmbed = append(toEmbed, i)
	}
	if len(toEmbed) == 0 {
		return res, nil
	}

	concurrency := opt.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	vectors := make([][]float32, len(toEmbed))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	var firstErr error
	for j, i := range toEmbed {
		wg.Add(1)
		sem <- struct{}{}
		go func(j, i int) {
			defer wg.Done()
			defer func() { <-sem }()
			embedded, err := idx.Embedder.Embed(ctx, []string{batch[i].Texto})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.errors++
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			vectors[j] = embedded[0]
			res.embedded++
		}(j, i)
	}
	wg.Wait()

	if opt.DryRun {
		return res, firstErr
	}

	finalPoints := make([]vectorstore.Point, 0, len(toEmbed))
	finalVectors := make([][]float32, 0, len(toEmbed))
	for j, i := range toEmbed {
		if vectors[j] == nil {
			continue
		}
		finalPoints = append(finalPoints, points[i])
		finalVectors = append(finalVectors, vectors[j])
	}
	if len(finalPoints) > 0 {
		if err := idx.Vectors.Upsert(ctx, finalPoints, finalVectors); err != nil {
			return res, err
		}
		res.upserted = len(finalPoints)
	}
	return res, firstErr
}

func buildPoint(c documents.ChunkSemantico) vectorstore.Point {
	return vectorstore.Point{
		ChunkID:          c.IDChunk,
		IDNorma:          c.IDNorma,
		IDUnidad:         c.IDUnidad,
		UnidadTipo:       c.UnidadTipo,
		UnidadRef:        c.UnidadRef,
		Titulo:           c.Titulo,
		TerritorioCodigo: c.Metadata.TerritorioCodigo,
		TerritorioTipo:   c.Metadata.TerritorioTipo,
		TerritorioNombre: c.Metadata.TerritorioNombre,
		VigenciaDesdeMs:  vigencia.ToDesdeMillis(c.FechaVigenciaDesde),
		VigenciaHastaMs:  vigencia.ToHastaMillis(c.FechaVigenciaHasta),
		URLConsolidated:  c.Metadata.URLConsolidated,
		URLEli:           c.Metadata.URLEli,
		Tags:             c.Metadata.Tags,
		Text:             c.Texto,
		TextoHash:        c.TextoHash,
		ChunkingHash:     c.ChunkingHash,
	}
}

// cleanup implements spec §4.8 step 6's per-norm scroll-and-delete strategy
// when a specific norm was targeted, or a whole-collection cross-check
// otherwise.
func (idx *Indexer) cleanup(ctx context.Context, opt Options, expected map[string][]string) (int, error) {
	deleteBatch := opt.CleanupDeleteBatchSize
	if deleteBatch <= 0 {
		deleteBatch = 256
	}

	if opt.OnlyNorma != "" {
		return idx.cleanupNorma(ctx, opt.OnlyNorma, expected[opt.OnlyNorma], deleteBatch)
	}

	scrollBatch := opt.CleanupScrollBatchSize
	if scrollBatch <= 0 {
		scrollBatch = 512
	}
	present, err := idx.Vectors.ScrollChunkIDs(ctx, scrollBatch)
	if err != nil {
		return 0, err
	}

	// Build the authoritative chunk id set by re-deriving expected UUIDs.
	keep := make(map[string]bool)
	for _, ids := range expected {
		for _, id := range ids {
			keep[vectorstore.PointUUID(id)] = true
		}
	}

	var stale []string
	for uuid := range present {
		if !keep[uuid] {
			stale = append(stale, uuid)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := idx.Vectors.DeleteByUUIDs(ctx, stale, deleteBatch); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (idx *Indexer) cleanupNorma(ctx context.Context, idNorma string, expectedIDs []string, deleteBatch int) (int, error) {
	present, err := idx.Vectors.ScrollByNorma(ctx, idNorma)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(expectedIDs))
	for _, id := range expectedIDs {
		keep[vectorstore.PointUUID(id)] = true
	}
	var stale []string
	for _, uuid := range present {
		if !keep[uuid] {
			stale = append(stale, uuid)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := idx.Vectors.DeleteByUUIDs(ctx, stale, deleteBatch); err != nil {
		return 0, err
	}
	return len(stale), nil
}
