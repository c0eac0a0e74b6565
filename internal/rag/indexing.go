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

// IndexResult 索引结果
type IndexResult struct {
	DocumentsIn   int   `json:"documents_in"`
	ChunksWritten int   `json:"chunks_written"`
	ElapsedMS     int64 `json:"elapsed_ms"`
}

// IndexingPipeline 文档入库流水线：分块、向量化、写入存储。
// 向量化整批进行，任一失败则整次索引失败，不写入半成品。
type IndexingPipeline struct {
	chunker   *Chunker
	embedder  Embedder
	store     DocumentStore
	batchSize int
}

// NewIndexingPipeline 创建索引流水线
func NewIndexingPipeline(chunker *Chunker, embedder Embedder, store DocumentStore, batchSize int) *IndexingPipeline {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &IndexingPipeline{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
	}
}

// Index 索引一批文档。每个文档先按词分块，分块继承原文档的
// metadata并附加chunk_index与source_doc_id；空白内容的文档跳过。
func (p *IndexingPipeline) Index(ctx context.Context, docs []Document) (IndexResult, error) {
	start := time.Now()
	result := IndexResult{DocumentsIn: len(docs)}

	if len(docs) == 0 {
		return result, apperrors.NewValidationError("no documents to index")
	}

	var chunked []Document
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			logger.Warn("document has empty content, skipping", zap.String("doc_id", doc.ID))
			continue
		}
		if doc.ID == "" {
			return result, apperrors.NewValidationError("document id is required")
		}

		for _, chunk := range p.chunker.Split(doc.Content) {
			metadata := make(map[string]interface{}, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["chunk_index"] = chunk.Index
			metadata["source_doc_id"] = doc.ID

			chunked = append(chunked, Document{
				ID:       ChunkID(doc.ID, chunk.Index),
				Content:  chunk.Text,
				Metadata: metadata,
			})
		}
	}

	if len(chunked) == 0 {
		return result, apperrors.NewValidationError("all documents are empty")
	}

	texts := make([]string, len(chunked))
	for i, doc := range chunked {
		texts[i] = doc.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return result, apperrors.NewExternalServiceError("embedding",
			fmt.Errorf("embed %d chunks: %w", len(chunked), err))
	}
	for i := range chunked {
		chunked[i].Embedding = vectors[i]
	}

	written, err := p.store.Write(ctx, chunked, p.batchSize)
	result.ChunksWritten = written
	if err != nil {
		return result, apperrors.NewExternalServiceError("vector_store", err)
	}

	result.ElapsedMS = time.Since(start).Milliseconds()
	logger.Info("indexing completed",
		zap.Int("documents", result.DocumentsIn),
		zap.Int("chunks_written", result.ChunksWritten),
		zap.Int64("elapsed_ms", result.ElapsedMS))
	return result, nil
}
