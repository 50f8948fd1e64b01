package cmdutil

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docfoundry/docfoundry/internal/broker"
	"github.com/docfoundry/docfoundry/internal/chunker"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/converter"
	"github.com/docfoundry/docfoundry/internal/embedder"
	"github.com/docfoundry/docfoundry/internal/pipeline"
	"github.com/docfoundry/docfoundry/internal/statusstore"
	"github.com/docfoundry/docfoundry/internal/tokenizer"
	"github.com/docfoundry/docfoundry/internal/vectorstore"
)

// OpenBroker creates and connects the Redis queue broker.
func OpenBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*broker.RedisBroker, error) {
	b := broker.NewRedisBroker(
		broker.WithConfig(broker.Config{
			Addr:       cfg.Broker.Addr,
			Password:   cfg.Broker.Password,
			DB:         cfg.Broker.DB,
			MaxRetries: 3,
			RetryDelay: time.Second,
		}),
		broker.WithLogger(logger),
	)
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to broker; %w", err)
	}
	return b, nil
}

// OpenStatusStore opens the SQLite status database.
func OpenStatusStore(ctx context.Context, cfg *config.Config) (*statusstore.SQLiteStore, error) {
	store, err := statusstore.Open(ctx, cfg.StatusStore.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open status store; %w", err)
	}
	return store, nil
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	emb, err := embedder.New(embedder.Config{
		Provider:          cfg.Embedding.Provider,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		RequestsPerMinute: cfg.Embedding.RateLimit,
		APIKey:            cfg.Embedding.ResolveAPIKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build embedder; %w", err)
	}
	return emb, nil
}

// OpenVectorStore builds the configured vector store backend. The
// returned close function releases any backend connection.
func OpenVectorStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, func(), error) {
	switch cfg.VectorStore.Backend {
	case "file":
		store, err := vectorstore.NewFileStore(cfg.VectorStore.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file vector store; %w", err)
		}
		return store, func() {}, nil
	case "redis", "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Broker.Addr,
			Password: cfg.Broker.Password,
			DB:       cfg.Broker.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis vector store; %w", err)
		}
		store := vectorstore.NewRedisStore(client, vectorstore.WithKeyPrefix(cfg.VectorStore.KeyPrefix))
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

// NewChunker builds the hybrid chunker from config.
func NewChunker(cfg *config.Config) *chunker.Hybrid {
	tok := tokenizer.New(cfg.Chunking.Encoding)
	return chunker.New(tok,
		chunker.WithMaxTokens(cfg.Chunking.MaxTokens),
		chunker.WithMergePeers(cfg.Chunking.MergePeers),
	)
}

// PipelineQueues maps the queue config onto pipeline queue names.
func PipelineQueues(cfg *config.Config) pipeline.Queues {
	return pipeline.Queues{
		Extraction: cfg.Queues.Extraction,
		Chunking:   cfg.Queues.Chunking,
		Embedding:  cfg.Queues.Embedding,
	}
}

// BuildWorkerDeps assembles the full dependency set a stage worker
// needs. The returned close function tears the set down in reverse
// order.
func BuildWorkerDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Deps, func(), error) {
	b, err := OpenBroker(ctx, cfg, logger)
	if err != nil {
		return pipeline.Deps{}, nil, err
	}

	status, err := OpenStatusStore(ctx, cfg)
	if err != nil {
		_ = b.Stop(ctx)
		return pipeline.Deps{}, nil, err
	}

	emb, err := NewEmbedder(cfg)
	if err != nil {
		_ = status.Close()
		_ = b.Stop(ctx)
		return pipeline.Deps{}, nil, err
	}

	vectors, closeVectors, err := OpenVectorStore(ctx, cfg)
	if err != nil {
		_ = status.Close()
		_ = b.Stop(ctx)
		return pipeline.Deps{}, nil, err
	}

	deps := pipeline.Deps{
		Broker:     b,
		Status:     status,
		Converters: converter.DefaultRegistry(),
		Chunker:    NewChunker(cfg),
		Embedder:   emb,
		Vectors:    vectors,
		Logger:     logger,
	}

	closeAll := func() {
		closeVectors()
		_ = status.Close()
		_ = b.Stop(context.Background())
	}

	return deps, closeAll, nil
}
