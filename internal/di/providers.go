package di

import (
	"context"
	"fmt"
	"time"

	"github.com/quilora/backend-go/internal/cache"
	"github.com/quilora/backend-go/internal/config"
	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/metrics"
	"github.com/quilora/backend-go/internal/rag"
	"github.com/quilora/backend-go/internal/services"
	"github.com/quilora/backend-go/internal/storage"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 指标收集器
	if err := container.Provide(metrics.NewCollector); err != nil {
		return err
	}

	// Embedder
	if err := container.Provide(func(cfg *config.Config) (rag.Embedder, error) {
		return rag.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbeddingModel)
	}); err != nil {
		return err
	}

	// Generator
	if err := container.Provide(func(cfg *config.Config) (rag.Generator, error) {
		return rag.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, rag.GeneratorOptions{
			Model:       cfg.OpenAI.ChatModel,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
		})
	}); err != nil {
		return err
	}

	// 文档存储，按配置切换后端
	if err := container.Provide(func(cfg *config.Config) (rag.DocumentStore, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		switch cfg.VectorStore.Provider {
		case "milvus":
			return rag.NewMilvusStore(ctx, rag.MilvusOptions{
				Address:    cfg.VectorStore.Milvus.Address,
				Username:   cfg.VectorStore.Milvus.Username,
				Password:   cfg.VectorStore.Milvus.Password,
				Database:   cfg.VectorStore.Milvus.Database,
				Collection: cfg.VectorStore.Collection,
				VectorSize: cfg.VectorStore.VectorSize,
				Distance:   cfg.VectorStore.Distance,
				UseTLS:     cfg.VectorStore.Milvus.TLS,
			})
		default:
			return rag.NewQdrantStore(ctx, rag.QdrantOptions{
				Endpoint:   cfg.VectorStore.Qdrant.Endpoint,
				APIKey:     cfg.VectorStore.Qdrant.APIKey,
				Collection: cfg.VectorStore.Collection,
				VectorSize: cfg.VectorStore.VectorSize,
				Distance:   cfg.VectorStore.Distance,
				UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
				Timeout:    time.Duration(cfg.VectorStore.Qdrant.Timeout) * time.Second,
			})
		}
	}); err != nil {
		return err
	}

	// 分块器
	if err := container.Provide(func(cfg *config.Config) *rag.Chunker {
		return rag.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	}); err != nil {
		return err
	}

	// 索引流水线
	if err := container.Provide(func(chunker *rag.Chunker, embedder rag.Embedder, store rag.DocumentStore, cfg *config.Config) *rag.IndexingPipeline {
		return rag.NewIndexingPipeline(chunker, embedder, store, cfg.VectorStore.BatchSize)
	}); err != nil {
		return err
	}

	// 检索流水线
	if err := container.Provide(func(embedder rag.Embedder, store rag.DocumentStore, generator rag.Generator, cfg *config.Config) *rag.RetrievalPipeline {
		return rag.NewRetrievalPipeline(embedder, store, generator, rag.RetrievalOptions{
			TopK:           cfg.Retrieval.TopK,
			ScoreThreshold: cfg.Retrieval.MinSimilarityScore,
			EmbedRetry: rag.RetryPolicy{
				MaxAttempts: cfg.Retry.EmbedAttempts,
				BaseBackoff: time.Duration(cfg.Retry.BaseBackoffMS) * time.Millisecond,
				MaxBackoff:  time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
				Retryable:   rag.IsTransientProviderError,
			},
			SearchRetry: rag.RetryPolicy{
				MaxAttempts: cfg.Retry.SearchAttempts,
				BaseBackoff: time.Duration(cfg.Retry.BaseBackoffMS) * time.Millisecond,
				MaxBackoff:  time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
			},
			GenerationTimeout: time.Duration(cfg.OpenAI.GenerationTimeout) * time.Second,
		})
	}); err != nil {
		return err
	}

	// 查询缓存（可选，连接失败时降级为nil）
	if err := container.Provide(func(cfg *config.Config) *cache.QueryCache {
		if !cfg.Redis.Enabled {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		queryCache, err := cache.NewQueryCache(ctx,
			fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTL)*time.Second)
		if err != nil {
			logger.Warn("query cache unavailable, continuing without it", zap.Error(err))
			return nil
		}
		return queryCache
	}); err != nil {
		return err
	}

	// 上传归档（可选，未配置对象存储时为nil）
	if err := container.Provide(func(cfg *config.Config) *storage.UploadArchive {
		if cfg.Storage.Provider == "" {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		archive, err := storage.NewUploadArchive(ctx, cfg.Storage)
		if err != nil {
			logger.Warn("upload archive unavailable, continuing without it", zap.Error(err))
			return nil
		}
		return archive
	}); err != nil {
		return err
	}

	// 服务层
	if err := container.Provide(func(pipeline *rag.IndexingPipeline, store rag.DocumentStore, archive *storage.UploadArchive, queryCache *cache.QueryCache, collector *metrics.Collector, cfg *config.Config) *services.DocumentService {
		return services.NewDocumentService(pipeline, store, archive, queryCache, collector, cfg.FileUpload)
	}); err != nil {
		return err
	}

	if err := container.Provide(services.NewQueryService); err != nil {
		return err
	}

	if err := container.Provide(func(store rag.DocumentStore, archive *storage.UploadArchive, cfg *config.Config) *services.HealthService {
		return services.NewHealthService(store, archive, cfg.VectorStore.Collection)
	}); err != nil {
		return err
	}

	return nil
}
