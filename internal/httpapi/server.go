// Package httpapi exposes the retrieval HTTP surface: search, grounded
// answers, unit lookup, the CCAA catalog, health, and pipeline stats
// (spec §6 "Retrieval surface"), following the teacher's
// internal/httpapi server/handler split.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"norma-pipeline/internal/answerer"
	"norma-pipeline/internal/config"
	"norma-pipeline/internal/embedclient"
	"norma-pipeline/internal/orchestrator"
	"norma-pipeline/internal/persistence/documents"
	"norma-pipeline/internal/persistence/vectorstore"
)

// QueueDepths reports the current depth of each pipeline queue, the shape
// GET /pipeline/stats needs alongside throughput counts. orchestrator.Queues
// satisfies this directly.
type QueueDepths interface {
	Depth(ctx context.Context, stage orchestrator.Stage) (int, error)
}

// Server wires the retrieval surface to the document store, vector store,
// embedder, answer synthesizer, and (optionally) orchestrator stats.
type Server struct {
	store    *documents.Store
	vectors  *vectorstore.Store
	embedder embedclient.Embedder
	answers  answerer.Answerer
	stats    *orchestrator.StatsTracker
	queues   QueueDepths
	rag      config.RAGConfig
	mux      *http.ServeMux
	started  time.Time
}

// NewServer builds the retrieval HTTP server. stats and queues may be nil,
// in which case /pipeline/stats reports empty throughput/depth.
func NewServer(store *documents.Store, vectors *vectorstore.Store, embedder embedclient.Embedder,
	answers answerer.Answerer, stats *orchestrator.StatsTracker, queues QueueDepths, rag config.RAGConfig) *Server {
	s := &Server{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		answers:  answers,
		stats:    stats,
		queues:   queues,
		rag:      rag,
		mux:      http.NewServeMux(),
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /rag/search", s.handleSearch)
	s.mux.HandleFunc("POST /rag/answer", s.handleAnswer)
	s.mux.HandleFunc("GET /rag/unidad/{id_unidad}", s.handleGetUnidad)
	s.mux.HandleFunc("GET /rag/catalog/ccaa", s.handleCatalogCCAA)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /pipeline/stats", s.handlePipelineStats)
}
