// Package config loads the pipeline's runtime configuration from the
// environment (optionally overridden by a local .env file), the way the
// teacher's internal/config/loader.go does: read-string, parse-with-
// fallback, never panic on a malformed value.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"norma-pipeline/internal/logging"
)

// HTTPConfig controls the outbound source-API client (spec §4.9 "HTTP
// source client", §6 "Configuration").
type HTTPConfig struct {
	RequestConcurrency int
	TimeoutMS          int
	UserAgent          string
	RetryCount         int
	RetryBackoffMS     int
	SourceAPIBaseURL   string
}

func (c HTTPConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }
func (c HTTPConfig) Backoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// ChunkConfig controls the chunk engine (spec §4.7).
type ChunkConfig struct {
	Method  string // recursive|simple
	Size    int
	Overlap int
}

// TextExtractor selects the normalization variant used by the semantic
// unit builder (spec §9 open question on extractor-dependent hashing).
type TextExtractor string

const (
	ExtractorFastXML TextExtractor = "fastxml"
	ExtractorXPath   TextExtractor = "xpath"
)

// StorageConfig controls the object store and flags carried from discover
// through to the sync stage (spec §4.1, §4.9).
type StorageConfig struct {
	Root              string
	StoreRawSnapshots bool
	NormalizeTerritory bool
	TextExtractor     TextExtractor
}

// EmbeddingBackendConfig describes one embedding HTTP backend (spec §4.8).
type EmbeddingBackendConfig struct {
	Provider   string // local|openai
	BaseURL    string
	Path       string
	Model      string
	APIKey     string
	APIHeader  string
	TimeoutMS  int
	Dimensions int
}

func (c EmbeddingBackendConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// EmbeddingConfig carries the primary and optional fallback backends.
type EmbeddingConfig struct {
	Primary  EmbeddingBackendConfig
	Fallback *EmbeddingBackendConfig
}

// RateLimitConfig is a token-bucket {max per duration} limiter spec.
type RateLimitConfig struct {
	Max      int
	Duration time.Duration
}

// PipelineConcurrencyConfig sets per-stage consumer concurrency (spec §4.9, §5).
type PipelineConcurrencyConfig struct {
	Sync         int
	Build        int
	Index        int
	Orchestrator int
	SyncLimit    RateLimitConfig
	BuildLimit   RateLimitConfig
	IndexLimit   RateLimitConfig
}

// ServerConfig controls the retrieval HTTP surface (spec §6 "Retrieval
// surface").
type ServerConfig struct {
	Addr string
}

// AnswerConfig wires the chat-completion backend behind POST /rag/answer.
type AnswerConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// RAGConfig tunes the retrieval scoring/candidate-fetch behavior shared by
// /rag/search and /rag/answer (spec §6).
type RAGConfig struct {
	DefaultTopK       int
	MaxTopK           int
	CandidateMultiplier int
	MaxCandidates     int
	AnswerMaxChunks   int
}

// IndexerConfig controls the indexer CLI/worker (spec §4.8, §6).
type IndexerConfig struct {
	BatchSize               int
	EmbedConcurrency        int
	CleanupEnabled          bool
	CleanupScrollBatchSize  int
	CleanupDeleteBatchSize  int
}

// Config is the fully resolved, process-wide configuration value built once
// at startup and threaded explicitly into every command and worker (spec §9:
// "no global mutable state ... all context flows explicitly").
type Config struct {
	HTTP        HTTPConfig
	Storage     StorageConfig
	Chunk       ChunkConfig
	Embedding   EmbeddingConfig
	Concurrency PipelineConcurrencyConfig
	Indexer     IndexerConfig
	Server      ServerConfig
	RAG         RAGConfig
	Answer      AnswerConfig

	PostgresDSN       string
	QdrantDSN         string
	QdrantCollection  string
	QdrantMetric      string
	RedisAddr         string

	DryRun  bool
	Verbose bool
}

// Load reads Config from the environment. A .env file in the working
// directory is overlaid on top of the OS environment (Overload semantics),
// matching the teacher's local-development convenience.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		HTTP: HTTPConfig{
			RequestConcurrency: envInt("REQUEST_CONCURRENCY", 8),
			TimeoutMS:          envInt("HTTP_TIMEOUT_MS", 15000),
			UserAgent:          envString("USER_AGENT", "norma-pipeline/1.0"),
			RetryCount:         envInt("RETRY_COUNT", 4),
			RetryBackoffMS:     envInt("RETRY_BACKOFF_MS", 500),
			SourceAPIBaseURL:   envString("SOURCE_API_BASE_URL", ""),
		},
		Storage: StorageConfig{
			Root:               envString("STORAGE_ROOT", "./data/objects"),
			StoreRawSnapshots:  envBool("STORE_RAW_SNAPSHOTS", false),
			NormalizeTerritory: envBool("NORMALIZE_TERRITORY", true),
			TextExtractor:      TextExtractor(envString("TEXT_EXTRACTOR", string(ExtractorFastXML))),
		},
		Chunk: ChunkConfig{
			Method:  envString("CHUNK_METHOD", "recursive"),
			Size:    envInt("CHUNK_SIZE", 1200),
			Overlap: envInt("CHUNK_OVERLAP", 150),
		},
		Embedding: EmbeddingConfig{
			Primary: EmbeddingBackendConfig{
				Provider:   envString("EMBEDDINGS_PROVIDER", "local"),
				BaseURL:    envString("LOCAL_EMBEDDINGS_URL", "http://localhost:8081"),
				Path:       envString("EMBEDDINGS_PATH", "/embeddings"),
				Model:      envString("EMBEDDINGS_MODEL", "nomic-embed-text-v1.5"),
				APIKey:     envString("EMBEDDINGS_API_KEY", ""),
				APIHeader:  envString("EMBEDDINGS_API_HEADER", "Authorization"),
				TimeoutMS:  envInt("EMBEDDINGS_TIMEOUT_MS", 30000),
				Dimensions: envInt("EMBEDDINGS_DIMENSIONS", 768),
			},
		},
		Concurrency: PipelineConcurrencyConfig{
			Sync:         envInt("PIPELINE_CONCURRENCY_SYNC", 4),
			Build:        envInt("PIPELINE_CONCURRENCY_BUILD", 4),
			Index:        envInt("PIPELINE_CONCURRENCY_INDEX", 2),
			Orchestrator: envInt("PIPELINE_CONCURRENCY_ORCHESTRATOR", 1),
			SyncLimit:    rateLimit("PIPELINE_SYNC_RATE_LIMIT"),
			BuildLimit:   rateLimit("PIPELINE_BUILD_RATE_LIMIT"),
			IndexLimit:   rateLimit("PIPELINE_INDEX_RATE_LIMIT"),
		},
		Indexer: IndexerConfig{
			BatchSize:              envInt("INDEXER_BATCH_SIZE", 64),
			EmbedConcurrency:       envInt("INDEXER_EMBED_CONCURRENCY", 4),
			CleanupEnabled:         envBool("INDEXER_CLEANUP_ENABLED", true),
			CleanupScrollBatchSize: envInt("INDEXER_CLEANUP_SCROLL_BATCH_SIZE", 256),
			CleanupDeleteBatchSize: envInt("INDEXER_CLEANUP_DELETE_BATCH_SIZE", 128),
		},
		Server: ServerConfig{
			Addr: envString("HTTP_SERVER_ADDR", ":8090"),
		},
		RAG: RAGConfig{
			DefaultTopK:         envInt("RAG_DEFAULT_TOP_K", 8),
			MaxTopK:             envInt("RAG_MAX_TOP_K", 50),
			CandidateMultiplier: envInt("RAG_CANDIDATE_MULTIPLIER", 4),
			MaxCandidates:       envInt("RAG_MAX_CANDIDATES", 200),
			AnswerMaxChunks:     envInt("RAG_ANSWER_MAX_CHUNKS", 6),
		},
		Answer: AnswerConfig{
			BaseURL:     envString("ANSWER_LLM_BASE_URL", ""),
			APIKey:      envString("ANSWER_LLM_API_KEY", ""),
			Model:       envString("ANSWER_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:   envInt("ANSWER_LLM_MAX_TOKENS", 700),
			Temperature: envFloat("ANSWER_LLM_TEMPERATURE", 0.1),
		},
		PostgresDSN:      envString("POSTGRES_DSN", ""),
		QdrantDSN:        envString("QDRANT_DSN", "http://localhost:6334"),
		QdrantCollection: envString("QDRANT_COLLECTION", "norma_chunks"),
		QdrantMetric:     envString("QDRANT_METRIC", "cosine"),
		RedisAddr:        envString("REDIS_ADDR", "localhost:6379"),
		DryRun:           envBool("DRY_RUN", false),
		Verbose:          envBool("VERBOSE", false),
	}

	if fb := envString("EMBEDDINGS_FALLBACK_PROVIDER", ""); fb != "" {
		cfg.Embedding.Fallback = &EmbeddingBackendConfig{
			Provider:   fb,
			BaseURL:    envString("EMBEDDINGS_FALLBACK_BASE_URL", ""),
			Path:       envString("EMBEDDINGS_FALLBACK_PATH", "/v1/embeddings"),
			Model:      envString("EMBEDDINGS_FALLBACK_MODEL", cfg.Embedding.Primary.Model),
			APIKey:     envString("EMBEDDINGS_FALLBACK_API_KEY", ""),
			APIHeader:  envString("EMBEDDINGS_FALLBACK_API_HEADER", "Authorization"),
			TimeoutMS:  envInt("EMBEDDINGS_FALLBACK_TIMEOUT_MS", 30000),
			Dimensions: cfg.Embedding.Primary.Dimensions,
		}
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Log.WithField("key", key).WithField("value", v).Warn("config: invalid int, using default")
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logging.Log.WithField("key", key).WithField("value", v).Warn("config: invalid bool, using default")
		return def
	}
	return b
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logging.Log.WithField("key", key).WithField("value", v).Warn("config: invalid float, using default")
		return def
	}
	return f
}

func rateLimit(prefix string) RateLimitConfig {
	max := envInt(prefix+"_MAX", 0)
	durMS := envInt(prefix+"_DURATION_MS", 1000)
	return RateLimitConfig{Max: max, Duration: time.Duration(durMS) * time.Millisecond}
}
