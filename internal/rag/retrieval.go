package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/quilora/backend-go/internal/errors"
	"github.com/quilora/backend-go/internal/logger"
	"go.uber.org/zap"
)

// 生成提示词模板：要求模型只依据检索到的上下文作答，
// 上下文不足时明确说明
const promptTemplate = `You are a helpful AI assistant. Answer the question based on the provided context.

Context:
%s

Question: %s

Provide a clear, accurate answer based solely on the context above. If the context doesn't contain enough information, say so.

Answer:`

// noAnswerFallback 生成提供方返回零个completion时的兜底文案
const noAnswerFallback = "No answer generated"

// QueryInput 检索请求
type QueryInput struct {
	Query   string
	TopK    int
	Filters map[string]interface{}
}

// QueryMetadata 单次检索的过程信息与分段耗时（毫秒）
type QueryMetadata struct {
	NumDocumentsRetrieved int   `json:"num_documents_retrieved"`
	TopK                  int   `json:"top_k"`
	EmbedMS               int64 `json:"embed_ms"`
	SearchMS              int64 `json:"search_ms"`
	GenerateMS            int64 `json:"generate_ms"`
	TotalMS               int64 `json:"total_ms"`
}

// QueryResult 同步检索结果
type QueryResult struct {
	Query     string        `json:"query"`
	Documents []Document    `json:"documents"`
	Answer    string        `json:"answer"`
	Metadata  QueryMetadata `json:"metadata"`
}

// RetrievalOptions 检索流水线配置
type RetrievalOptions struct {
	TopK              int
	ScoreThreshold    float64
	EmbedRetry        RetryPolicy
	SearchRetry       RetryPolicy
	GenerationTimeout time.Duration
}

// RetrievalPipeline 查询时流水线：embed、search、生成。
// 同步与流式两条路径共用前两个阶段。
type RetrievalPipeline struct {
	embedder  Embedder
	store     DocumentStore
	generator Generator
	opts      RetrievalOptions
}

// NewRetrievalPipeline 创建检索流水线
func NewRetrievalPipeline(embedder Embedder, store DocumentStore, generator Generator, opts RetrievalOptions) *RetrievalPipeline {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.EmbedRetry.MaxAttempts <= 0 {
		opts.EmbedRetry = RetryPolicy{
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
			Retryable:   IsTransientProviderError,
		}
	}
	if opts.SearchRetry.MaxAttempts <= 0 {
		opts.SearchRetry = RetryPolicy{
			MaxAttempts: 2,
			BaseBackoff: 200 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
		}
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 60 * time.Second
	}
	return &RetrievalPipeline{
		embedder:  embedder,
		store:     store,
		generator: generator,
		opts:      opts,
	}
}

// retrieved embed+search两阶段的产物，同步与流式路径共用
type retrieved struct {
	documents []Document
	embedMS   int64
	searchMS  int64
}

// retrieve 执行embed与search阶段。embed只对瞬时提供方错误重试
// （最多3次），search对任何错误重试（最多2次）；任一阶段重试
// 耗尽后包装为外部服务错误返回。
func (p *RetrievalPipeline) retrieve(ctx context.Context, input QueryInput) (*retrieved, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, apperrors.NewValidationError("query cannot be empty")
	}

	topK := input.TopK
	if topK <= 0 {
		topK = p.opts.TopK
	}

	embedStart := time.Now()
	var vector []float32
	err := p.opts.EmbedRetry.Do(ctx, func() error {
		var embedErr error
		vector, embedErr = p.embedder.Embed(ctx, input.Query)
		return embedErr
	})
	embedMS := time.Since(embedStart).Milliseconds()
	if err != nil {
		logger.Error("query embedding failed after retries", zap.Error(err))
		return nil, apperrors.NewExternalServiceError("embedding", err)
	}

	searchStart := time.Now()
	var documents []Document
	err = p.opts.SearchRetry.Do(ctx, func() error {
		var searchErr error
		documents, searchErr = p.store.Search(ctx, SearchRequest{
			Vector:         vector,
			TopK:           topK,
			Filters:        input.Filters,
			ScoreThreshold: p.opts.ScoreThreshold,
		})
		return searchErr
	})
	searchMS := time.Since(searchStart).Milliseconds()
	if err != nil {
		logger.Error("vector search failed after retries", zap.Error(err))
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}

	logger.Debug("retrieval stages completed",
		zap.Int("documents", len(documents)),
		zap.Int64("embed_ms", embedMS),
		zap.Int64("search_ms", searchMS))

	return &retrieved{
		documents: documents,
		embedMS:   embedMS,
		searchMS:  searchMS,
	}, nil
}

// buildPrompt 把检索到的分块按结果顺序拼进指令模板
func buildPrompt(documents []Document, question string) string {
	var contexts strings.Builder
	for _, doc := range documents {
		contexts.WriteString(doc.Content)
		contexts.WriteString("\n")
	}
	return fmt.Sprintf(promptTemplate, contexts.String(), question)
}

// Query 同步检索与生成。生成阶段不重试，受固定wall-clock超时约束，
// 超时包装为超时错误返回。
func (p *RetrievalPipeline) Query(ctx context.Context, input QueryInput) (*QueryResult, error) {
	start := time.Now()

	ret, err := p.retrieve(ctx, input)
	if err != nil {
		return nil, err
	}

	topK := input.TopK
	if topK <= 0 {
		topK = p.opts.TopK
	}

	prompt := buildPrompt(ret.documents, input.Query)

	genCtx, cancel := context.WithTimeout(ctx, p.opts.GenerationTimeout)
	defer cancel()

	generateStart := time.Now()
	answer, err := p.generator.Generate(genCtx, prompt)
	generateMS := time.Since(generateStart).Milliseconds()
	if err != nil {
		if genCtx.Err() == context.DeadlineExceeded {
			logger.Error("answer generation timed out",
				zap.Duration("timeout", p.opts.GenerationTimeout))
			return nil, apperrors.NewTimeoutError("generation").WithCause(err)
		}
		logger.Error("answer generation failed", zap.Error(err))
		return nil, apperrors.NewExternalServiceError("generation", err)
	}
	if answer == "" {
		answer = noAnswerFallback
	}

	result := &QueryResult{
		Query:     input.Query,
		Documents: ret.documents,
		Answer:    answer,
		Metadata: QueryMetadata{
			NumDocumentsRetrieved: len(ret.documents),
			TopK:                  topK,
			EmbedMS:               ret.embedMS,
			SearchMS:              ret.searchMS,
			GenerateMS:            generateMS,
			TotalMS:               time.Since(start).Milliseconds(),
		},
	}

	logger.Info("query completed",
		zap.Int("documents", len(ret.documents)),
		zap.Int64("total_ms", result.Metadata.TotalMS))
	return result, nil
}
