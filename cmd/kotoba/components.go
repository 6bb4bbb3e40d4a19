package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/gemini"
	"github.com/hyperjump/kotoba/internal/generation"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/ratelimit"
	"github.com/hyperjump/kotoba/internal/rag"
	"github.com/hyperjump/kotoba/internal/retrieval"
	"github.com/hyperjump/kotoba/internal/server"
	"github.com/hyperjump/kotoba/internal/session"
	"github.com/hyperjump/kotoba/internal/transcript"
	"github.com/hyperjump/kotoba/internal/vector"
	"go.uber.org/zap"
)

// Components holds the wired application.
type Components struct {
	Service  *rag.Service
	Provider *transcript.FileProvider
	Store    vector.Store
	Embedder embedding.Embedder
	Registry session.Registry
	Info     server.Info
	closers  []func() error
}

// Close releases every component in reverse construction order.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()
	var debugLogger *zap.Logger
	if debug {
		debugLogger = logger
	}

	var client *gemini.Client
	embedLimiter := ratelimit.NewLimiterFromRPM(cfg.Embedding.RPM, cfg.Embedding.Safety)
	if cfg.Embedding.Backend == embedding.KindGemini || cfg.Generation.Backend == generation.KindGemini {
		client, err = newGeminiClient(cfg, embedLimiter, debugLogger)
		if err != nil {
			return nil, err
		}
	}

	emb, err := buildEmbedder(cfg, client, debugLogger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, emb.Close)
	c.Embedder = embedding.NewCachedEmbedder(emb, cfg.Embedding.CacheSize)

	var storeOpts []vector.SQLiteOption
	if debugLogger != nil {
		storeOpts = append(storeOpts, vector.WithLogger(debugLogger))
	}
	c.Store, err = vector.NewStore(cfg.Vector.Store, cfg.Vector.Path, c.Embedder.Dimensions(), storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	c.closers = append(c.closers, c.Store.Close)

	c.Registry, err = buildRegistry(ctx, cfg, c)
	if err != nil {
		return nil, err
	}

	gen, err := buildGenerator(cfg, client, debugLogger)
	if err != nil {
		return nil, err
	}

	chunker, err := indexer.NewChunker(cfg.Chunking.Size, cfg.Chunking.OverlapOrDefault())
	if err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	idx := indexer.NewIndexer(chunker, c.Embedder, c.Store, indexer.WithLogger(debugLogger))
	asm := retrieval.NewAssembler(c.Registry, c.Embedder, c.Store,
		retrieval.WithTopK(cfg.Vector.TopK),
		retrieval.WithLogger(debugLogger))
	c.Provider = transcript.NewFileProvider(cfg.Transcripts.Dir,
		transcript.WithLanguages(cfg.Transcripts.Languages),
		transcript.WithLogger(debugLogger))

	budget := rag.Budget{
		Fixed:     cfg.Indexing.Timeout,
		Min:       cfg.Indexing.MinTimeout,
		BatchSize: cfg.Embedding.BatchSize,
	}
	if cfg.Embedding.Backend == embedding.KindGemini {
		budget.Interval = embedLimiter.Interval()
	}
	c.Service = rag.NewService(idx, asm, c.Registry, c.Store, gen,
		rag.WithProvider(c.Provider),
		rag.WithBudget(budget),
		rag.WithLogger(logger))

	if _, err := c.Service.Rehydrate(ctx); err != nil {
		return nil, err
	}

	c.Info = server.Info{
		StoreKind:        cfg.Vector.Store,
		EmbeddingBackend: cfg.Embedding.Backend,
		Dimensions:       c.Embedder.Dimensions(),
		ChunkSize:        chunker.ChunkSize(),
		ChunkOverlap:     chunker.ChunkOverlap(),
	}
	if client != nil {
		c.Info.GeminiUsage = client.Usage
	}
	if s, ok := c.Store.(*vector.SQLiteStore); ok {
		c.Info.DiskUsage = s.DiskUsageBytes
	}
	return c, nil
}

func newGeminiClient(cfg *config.Config, embedLimiter *ratelimit.Limiter, logger *zap.Logger) (*gemini.Client, error) {
	key := cfg.Gemini.APIKey()
	if key == "" {
		return nil, fmt.Errorf("%s is not set (needed by the gemini backend)", cfg.Gemini.APIKeyEnv)
	}
	opts := []gemini.Option{
		gemini.WithEmbedLimiter(embedLimiter),
		gemini.WithGenerateLimiter(ratelimit.NewLimiterFromRPM(cfg.Generation.RPM, 0)),
		gemini.WithMaxRetries(cfg.Gemini.MaxRetries),
		gemini.WithLogger(logger),
	}
	if cfg.Gemini.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
	}
	return gemini.NewClient(key, opts...), nil
}

func buildEmbedder(cfg *config.Config, client *gemini.Client, logger *zap.Logger) (embedding.Embedder, error) {
	ec := cfg.Embedding
	switch ec.Backend {
	case embedding.KindGemini:
		return embedding.NewGeminiEmbedder(client, ec.Model, ec.Dimensions, ec.BatchSize, embedding.WithLogger(logger))
	case embedding.KindONNX:
		if !embedding.ONNXAvailable() {
			return nil, errors.New("onnx embedding backend requires a cgo build")
		}
		tok, err := embedding.NewTokenizer(ec.TokenizerPath)
		if err != nil {
			return nil, err
		}
		return embedding.NewONNXEmbedder(ec.ModelPath, ec.Dimensions, ec.MaxTokens, tok, embedding.WithONNXBatchSize(ec.BatchSize))
	case embedding.KindHash:
		return embedding.NewHashEmbedder(ec.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend: %s (supported: gemini, onnx, hash)", ec.Backend)
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config, c *Components) (session.Registry, error) {
	sc := cfg.Session
	switch sc.Backend {
	case session.KindMemory, "":
		return session.NewMemoryRegistry(session.WithTTL(sc.TTL)), nil
	case session.KindRedis:
		rdb, err := session.ConnectRedis(ctx, sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, rdb.Close)
		return session.NewRedisRegistry(rdb, sc.Redis.Prefix, sc.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s (supported: memory, redis)", sc.Backend)
	}
}

func buildGenerator(cfg *config.Config, client *gemini.Client, logger *zap.Logger) (generation.Generator, error) {
	gc := cfg.Generation
	switch gc.Backend {
	case generation.KindGemini:
		opts := []generation.GeminiOption{
			generation.WithMaxOutputTokens(gc.MaxOutputTokens),
			generation.WithLogger(logger),
		}
		if gc.Temperature != nil {
			opts = append(opts, generation.WithTemperature(*gc.Temperature))
		}
		return generation.NewGeminiGenerator(client, gc.Model, opts...), nil
	case generation.KindEcho:
		return generation.EchoGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown generation backend: %s (supported: gemini, echo)", gc.Backend)
	}
}
