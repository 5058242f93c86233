// Package pipelinecli wires the shared collaborators every CLI binary
// needs (document store, source client, object store, embedder, vector
// store, indexer) from one resolved config.Config, in the teacher's
// cmd/embedctl style of config.Load() once at startup followed by a
// handful of constructor calls, generalized across four binaries instead
// of duplicated in each main.go.
package pipelinecli

import (
	"context"
	"fmt"

	"norma-pipeline/internal/config"
	"norma-pipeline/internal/embedclient"
	"norma-pipeline/internal/indexer"
	"norma-pipeline/internal/objectstore"
	"norma-pipeline/internal/persistence/documents"
	"norma-pipeline/internal/parsers"
	"norma-pipeline/internal/persistence/vectorstore"
	"norma-pipeline/internal/sourceclient"
)

// Deps bundles every collaborator a pipeline CLI command might need. Not
// every command uses every field.
type Deps struct {
	Config   config.Config
	Store    *documents.Store
	Source   *sourceclient.Client
	Objects  *objectstore.Store
	Embedder embedclient.Embedder
	Vectors  *vectorstore.Store
	Indexer  *indexer.Indexer
}

// Close releases every collaborator that owns a live connection.
func (d *Deps) Close() {
	if d.Store != nil {
		d.Store.Close()
	}
	if d.Vectors != nil {
		_ = d.Vectors.Close()
	}
}

// Wire opens the Postgres pool, object store, and Qdrant client and
// assembles the indexer, returning a Deps ready for any command. Callers
// that don't need the vector store or indexer (e.g. `ingestor discover`)
// may simply ignore those fields.
func Wire(ctx context.Context, cfg config.Config) (*Deps, error) {
	pool, err := documents.OpenPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("pipelinecli: open postgres: %w", err)
	}
	if err := documents.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pipelinecli: ensure schema: %w", err)
	}
	store := documents.NewStore(pool)

	objects, err := objectstore.New(cfg.Storage.Root)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("pipelinecli: open object store: %w", err)
	}

	vectors, err := vectorstore.Open(cfg.QdrantDSN, cfg.QdrantCollection, cfg.QdrantMetric)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("pipelinecli: open vector store: %w", err)
	}

	embedder := embedclient.New(cfg.Embedding)

	idx := &indexer.Indexer{Store: store, Embedder: embedder, Vectors: vectors}

	return &Deps{
		Config:   cfg,
		Store:    store,
		Source:   sourceclient.New(cfg.HTTP),
		Objects:  objects,
		Embedder: embedder,
		Vectors:  vectors,
		Indexer:  idx,
	}, nil
}

// TextExtractorFunc resolves the configured extractor enum to the actual
// function the semantic unit builder and sync stage consume.
func TextExtractorFunc(cfg config.Config) parsers.TextExtractor {
	switch cfg.Storage.TextExtractor {
	case config.ExtractorXPath:
		return parsers.ExtractXPath
	default:
		return parsers.ExtractFastXML
	}
}
