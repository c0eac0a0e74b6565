package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/quilora/backend-go/internal/cache"
	"github.com/quilora/backend-go/internal/config"
	apperrors "github.com/quilora/backend-go/internal/errors"
	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/metrics"
	"github.com/quilora/backend-go/internal/rag"
	"github.com/quilora/backend-go/internal/storage"
	"go.uber.org/zap"
)

const contentPreviewRunes = 200

// DocumentUploadResult 文档创建/上传结果
type DocumentUploadResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

// DocumentSummary 列表接口返回的单个分块摘要
type DocumentSummary struct {
	ID             string                 `json:"id"`
	ContentPreview string                 `json:"content_preview"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// DocumentList 分页列表结果。列出的是存储的分块，不是原始逻辑文档
type DocumentList struct {
	Documents  []DocumentSummary `json:"documents"`
	TotalCount int64             `json:"total_count"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

// DocumentDeleteResult 删除结果
type DocumentDeleteResult struct {
	Message      string `json:"message"`
	DocumentID   string `json:"document_id,omitempty"`
	DeletedCount int64  `json:"deleted_count"`
}

// DocumentService 文档管理服务：创建、上传、列表、删除
type DocumentService struct {
	pipeline   *rag.IndexingPipeline
	store      rag.DocumentStore
	archive    *storage.UploadArchive // 可选，nil时跳过归档
	queryCache *cache.QueryCache      // 可选，文档变更后清空缓存答案
	collector  *metrics.Collector
	upload     config.FileUploadConfig
}

// NewDocumentService 创建文档服务。archive为nil时上传的原始文件不归档。
func NewDocumentService(pipeline *rag.IndexingPipeline, store rag.DocumentStore, archive *storage.UploadArchive, queryCache *cache.QueryCache, collector *metrics.Collector, upload config.FileUploadConfig) *DocumentService {
	if len(upload.AllowedTypes) == 0 {
		upload.AllowedTypes = []string{".txt", ".md"}
	}
	return &DocumentService{
		pipeline:   pipeline,
		store:      store,
		archive:    archive,
		queryCache: queryCache,
		collector:  collector,
		upload:     upload,
	}
}

// invalidateQueryCache 文档集合变更后清空缓存的查询答案
func (s *DocumentService) invalidateQueryCache(ctx context.Context) {
	if s.queryCache != nil {
		s.queryCache.Flush(ctx)
	}
}

// Create 从JSON内容创建并索引文档
func (s *DocumentService) Create(ctx context.Context, content string, metadata map[string]interface{}) (*DocumentUploadResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("Content cannot be empty")
	}

	docID := uuid.New().String()
	doc := rag.Document{
		ID:       docID,
		Content:  content,
		Metadata: metadata,
	}

	result, err := s.pipeline.Index(ctx, []rag.Document{doc})
	s.collector.RecordRequest("index", err)
	if err != nil {
		return nil, err
	}

	s.invalidateQueryCache(ctx)
	return &DocumentUploadResult{
		DocumentID: docID,
		ChunkCount: result.ChunksWritten,
		Message:    fmt.Sprintf("Document indexed successfully with %d chunks", result.ChunksWritten),
	}, nil
}

// Upload 上传文件并索引其内容。只接受配置允许的纯文本扩展名，
// 文件必须是合法UTF-8。
func (s *DocumentService) Upload(ctx context.Context, filename string, data []byte) (*DocumentUploadResult, error) {
	if filename == "" {
		filename = "unknown"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.extensionAllowed(ext) {
		return nil, apperrors.NewInvalidFileError(
			fmt.Sprintf("Unsupported file type. Supported formats: %s", strings.Join(s.upload.AllowedTypes, ", ")))
	}
	if s.upload.MaxSize > 0 && int64(len(data)) > s.upload.MaxSize {
		return nil, &apperrors.AppError{
			Code:     apperrors.ErrCodeFileTooLarge,
			Message:  fmt.Sprintf("File exceeds maximum size of %d bytes", s.upload.MaxSize),
			Type:     apperrors.ErrorTypeValidation,
			HTTPCode: 400,
		}
	}
	if !utf8.Valid(data) {
		return nil, apperrors.NewInvalidFileError("File must be valid UTF-8 text")
	}

	content := string(data)
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("Content cannot be empty")
	}

	docID := uuid.New().String()
	doc := rag.Document{
		ID:      docID,
		Content: content,
		Metadata: map[string]interface{}{
			"filename": filename,
			"source":   "file_upload",
		},
	}

	result, err := s.pipeline.Index(ctx, []rag.Document{doc})
	s.collector.RecordRequest("index", err)
	if err != nil {
		return nil, err
	}

	// 归档失败不阻断索引结果
	if s.archive != nil {
		if err := s.archive.ArchiveUpload(ctx, docID, filename, bytes.NewReader(data), int64(len(data))); err != nil {
			logger.Warn("failed to archive upload",
				zap.String("doc_id", docID), zap.Error(err))
		}
	}

	s.invalidateQueryCache(ctx)
	return &DocumentUploadResult{
		DocumentID: docID,
		ChunkCount: result.ChunksWritten,
		Message:    fmt.Sprintf("File '%s' indexed successfully with %d chunks", filename, result.ChunksWritten),
	}, nil
}

func (s *DocumentService) extensionAllowed(ext string) bool {
	for _, allowed := range s.upload.AllowedTypes {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// List 分页列出存储的分块，内容截断为前200个字符的预览
func (s *DocumentService) List(ctx context.Context, limit, offset int) (*DocumentList, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		s.collector.RecordRequest("list", err)
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}
	s.collector.SetDocumentsStored(total)

	list := &DocumentList{
		Documents:  []DocumentSummary{},
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}
	if total == 0 {
		s.collector.RecordRequest("list", nil)
		return list, nil
	}

	docs, err := s.store.Scroll(ctx, limit, offset)
	s.collector.RecordRequest("list", err)
	if err != nil {
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}

	for _, doc := range docs {
		list.Documents = append(list.Documents, DocumentSummary{
			ID:             doc.ID,
			ContentPreview: previewContent(doc.Content),
			Metadata:       doc.Metadata,
		})
	}
	return list, nil
}

func previewContent(content string) string {
	runes := []rune(content)
	if len(runes) <= contentPreviewRunes {
		return content
	}
	return string(runes[:contentPreviewRunes]) + "..."
}

// Delete 删除一个逻辑文档的全部分块。目标不存在时返回404。
func (s *DocumentService) Delete(ctx context.Context, documentID string) (*DocumentDeleteResult, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, apperrors.NewValidationError("Document id cannot be empty")
	}

	filters := map[string]interface{}{"source_doc_id": documentID}

	count, err := s.store.CountByFilter(ctx, filters)
	if err != nil {
		s.collector.RecordRequest("delete", err)
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}
	if count == 0 {
		s.collector.RecordRequest("delete", nil)
		return nil, apperrors.NewNotFoundError("Document")
	}

	_, err = s.store.Delete(ctx, nil, filters)
	s.collector.RecordRequest("delete", err)
	if err != nil {
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}

	s.invalidateQueryCache(ctx)
	logger.Info("document deleted",
		zap.String("doc_id", documentID), zap.Int64("chunks", count))
	return &DocumentDeleteResult{
		Message:      fmt.Sprintf("Document '%s' deleted", documentID),
		DocumentID:   documentID,
		DeletedCount: count,
	}, nil
}

// DeleteAll 清空整个集合：先取计数，再drop并重建。
// 调用方必须通过confirm显式确认。
func (s *DocumentService) DeleteAll(ctx context.Context, confirm bool) (*DocumentDeleteResult, error) {
	if !confirm {
		return nil, apperrors.NewValidationError("Must provide 'all=true' query parameter to confirm bulk deletion")
	}

	countBefore, err := s.store.Count(ctx)
	if err != nil {
		s.collector.RecordRequest("delete_all", err)
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}
	if countBefore == 0 {
		s.collector.RecordRequest("delete_all", nil)
		return &DocumentDeleteResult{
			Message:      "No documents to delete",
			DeletedCount: 0,
		}, nil
	}

	if err := s.store.DropCollection(ctx); err != nil {
		s.collector.RecordRequest("delete_all", err)
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}
	if err := s.store.EnsureCollection(ctx); err != nil {
		s.collector.RecordRequest("delete_all", err)
		return nil, apperrors.NewExternalServiceError("vector_store", err)
	}

	s.collector.RecordRequest("delete_all", nil)
	s.collector.SetDocumentsStored(0)
	s.invalidateQueryCache(ctx)
	logger.Warn("all documents deleted", zap.Int64("count", countBefore))
	return &DocumentDeleteResult{
		Message:      fmt.Sprintf("Deleted all %d documents", countBefore),
		DeletedCount: countBefore,
	}, nil
}
