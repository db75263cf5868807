package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/em-ech/siftopsv1-sub000/internal/bundle"
	"github.com/em-ech/siftopsv1-sub000/internal/config"
	"github.com/em-ech/siftopsv1-sub000/internal/embedcache"
	"github.com/em-ech/siftopsv1-sub000/internal/handlers"
	"github.com/em-ech/siftopsv1-sub000/internal/http"
	"github.com/em-ech/siftopsv1-sub000/internal/indexer"
	"github.com/em-ech/siftopsv1-sub000/internal/llm"
	"github.com/em-ech/siftopsv1-sub000/internal/rag"
	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
	"github.com/em-ech/siftopsv1-sub000/internal/retrieval"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
	"github.com/em-ech/siftopsv1-sub000/internal/storage"
	"github.com/em-ech/siftopsv1-sub000/internal/telemetry"
	"github.com/em-ech/siftopsv1-sub000/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// Hybrid search and grounded question answering over connector-delivered documents.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Sift API
//   description: |
//     Hybrid lexical and semantic search with operator ranking directives,
//     evidence bundles and cited answers grounded in a locked bundle.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

const (
	serviceName     = "sift"
	serviceVersion  = "1.0.0"
	shutdownTimeout = 15 * time.Second
	redisKeyPrefix  = "sift:bundle:"
)

// indexStore is a vector store that can create its collection.
type indexStore interface {
	vectorstore.VectorStore
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	docRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	directiveRepo := storage.NewDirectiveRepo(db)

	if cfg.DirectivesFile != "" {
		if err := seedDirectives(ctx, directiveRepo, cfg.DirectivesFile); err != nil {
			log.Fatalf("Failed to seed directives: %v", err)
		}
	}

	vectorStore, err := newVectorStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create vector store: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.EmbeddingDim); err != nil {
		log.Fatalf("Failed to ensure vector collection: %v", err)
	}
	slog.Info("Vector collection ready", "backend", cfg.VectorBackend, "collection", cfg.QdrantCollection, "vector_size", cfg.EmbeddingDim)

	// Fail fast on a model that does not produce the configured dimension.
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingDim)
	probe, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(probe) == 0 || len(probe[0]) != cfg.EmbeddingDim {
		log.Fatalf("Embedding vector size mismatch: expected %d", cfg.EmbeddingDim)
	}
	slog.Info("Embedding client validated", "vector_size", cfg.EmbeddingDim)

	generator := llm.NewClientWithOptions(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, llm.ClientOptions{
		RequestsPerSecond: cfg.GenerationRPS,
		Burst:             llm.DefaultClientOptions.Burst,
	})
	if ok, err := llm.NewModelProbe(cfg.LLMBaseURL).HasModel(ctx, cfg.LLMModelName); err != nil || !ok {
		slog.Warn("Generation model not confirmed; answers may fail until it is available", "model", cfg.LLMModelName, "error", err)
	}

	chunker, err := indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Invalid chunker settings: %v", err)
	}
	pipeline := indexer.NewPipeline(docRepo, chunkRepo, embedder, vectorStore, cfg.QdrantCollection, chunker)
	if cfg.VectorBackend == config.VectorBackendMemory {
		pipeline.SetAlwaysEmbed(true)
		slog.Warn("Unchanged documents will be re-embedded on ingest to rebuild in-memory vectors")
	}

	cache := embedcache.New(cfg.CacheCapacity, cfg.CacheTTL)
	janitor, err := embedcache.StartJanitor(ctx, cache, cfg.CacheSweepInterval)
	if err != nil {
		log.Fatalf("Failed to start embedding cache janitor: %v", err)
	}
	defer janitor.Stop()

	searchService := service.NewSearchService(
		cache,
		embedder,
		retrieval.NewLexicalRetriever(chunkRepo, retrieval.DefaultRetryPolicy),
		retrieval.NewVectorRetriever(vectorStore, chunkRepo, cfg.QdrantCollection, retrieval.DefaultRetryPolicy),
		docRepo,
		ranking.NewResolver(directiveRepo),
		service.SearchConfig{
			DefaultTopK:      cfg.DefaultTopK,
			MinConfidence:    cfg.MinConfidence,
			RetrievalTimeout: cfg.RetrievalTimeout,
		},
	)

	bundleStore, closeBundles, err := newBundleStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to create bundle store: %v", err)
	}
	defer closeBundles()
	bundles := bundle.NewManager(bundleStore, docRepo)

	ragEngine := rag.NewEngine(bundles, docRepo, chunkRepo, generator, rag.Options{GenerationTimeout: cfg.GenerationTimeout})
	slog.Info("RAG engine initialized", "bundle_store", cfg.BundleStore)

	critical := map[string]handlers.HealthCheck{
		"database": db.PingContext,
		"vector_store": func(ctx context.Context) error {
			ok, err := vectorStore.CollectionExists(ctx, cfg.QdrantCollection)
			if err == nil && !ok {
				err = errors.New("collection missing")
			}
			return err
		},
	}
	optional := map[string]handlers.HealthCheck{}
	if pinger, ok := bundleStore.(interface{ Ping(context.Context) error }); ok {
		optional["bundle_store"] = pinger.Ping
	}

	router := http.NewRouter(&http.Deps{
		Searcher:   searchService,
		Ingester:   pipeline,
		Directives: directiveRepo,
		Bundles:    bundles,
		RAGEngine:  ragEngine,
		Coverage:   indexer.NewStatsReporter(docRepo, chunkRepo, chunker, cfg.EmbeddingModelName),
		Cache:      cache,
		Health:     handlers.NewHealthHandler(critical, optional, generator.BreakerState),
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

func newVectorStore(cfg *config.Config) (indexStore, error) {
	if cfg.VectorBackend == config.VectorBackendMemory {
		slog.Warn("Using in-memory vector store; vectors are lost on restart")
		return vectorstore.NewMemoryStore(), nil
	}
	return vectorstore.NewQdrantStore(cfg.QdrantURL)
}

// newBundleStore returns the configured store and a func releasing its connections.
func newBundleStore(ctx context.Context, cfg *config.Config, db *sql.DB) (bundle.Store, func(), error) {
	switch cfg.BundleStore {
	case config.BundleStoreRedis:
		rdb, err := bundle.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return bundle.NewRedisStore(rdb, redisKeyPrefix, cfg.BundleTTL), func() { _ = rdb.Close() }, nil
	case config.BundleStoreMemory:
		return bundle.NewMemoryStore(), func() {}, nil
	default:
		return bundle.NewSQLStore(db), func() {}, nil
	}
}

// seedDirectives upserts the directives declared in path.
func seedDirectives(ctx context.Context, store storage.DirectiveStore, path string) error {
	seeds, err := config.LoadDirectiveSeeds(path, handlers.DefaultTenant)
	if err != nil {
		return err
	}
	for i, seed := range seeds {
		d, err := handlers.ParseDirective(seed.Tenant, handlers.DirectiveRequest{
			ScopeKind:  seed.ScopeKind,
			ScopeValue: seed.ScopeValue,
			Target:     seed.Target,
			Action:     seed.Action,
			Weight:     seed.Weight,
		})
		if err != nil {
			return fmt.Errorf("directive #%d: %w", i+1, err)
		}
		if err := store.Upsert(ctx, &d); err != nil {
			return err
		}
	}
	slog.Info("Directives seeded", "path", path, "count", len(seeds))
	return nil
}
