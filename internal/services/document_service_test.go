package services

import (
	"context"
	"strings"
	"testing"

	"github.com/quilora/backend-go/internal/config"
	apperrors "github.com/quilora/backend-go/internal/errors"
	"github.com/quilora/backend-go/internal/metrics"
	"github.com/quilora/backend-go/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Prometheus指标注册全局只允许一次，测试共用一个collector
var testCollector = metrics.NewCollector()

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.1}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.1}
	}
	return vectors, nil
}

func (stubEmbedder) Dimensions() int { return 2 }

type stubStore struct {
	written       []rag.Document
	total         int64
	filterMatches int64
	deleteFilters map[string]interface{}
	dropped       bool
	ensured       int
	scrollDocs    []rag.Document
}

func (s *stubStore) EnsureCollection(ctx context.Context) error {
	s.ensured++
	return nil
}

func (s *stubStore) Write(ctx context.Context, docs []rag.Document, batchSize int) (int, error) {
	s.written = append(s.written, docs...)
	return len(docs), nil
}

func (s *stubStore) Search(ctx context.Context, req rag.SearchRequest) ([]rag.Document, error) {
	return nil, nil
}

func (s *stubStore) Delete(ctx context.Context, ids []string, filters map[string]interface{}) (rag.DeleteResult, error) {
	s.deleteFilters = filters
	if len(ids) > 0 {
		return rag.DeleteResult{Count: len(ids), CountKnown: true}, nil
	}
	return rag.DeleteResult{CountKnown: false}, nil
}

func (s *stubStore) Count(ctx context.Context) (int64, error) { return s.total, nil }

func (s *stubStore) CountByFilter(ctx context.Context, filters map[string]interface{}) (int64, error) {
	return s.filterMatches, nil
}

func (s *stubStore) Scroll(ctx context.Context, limit, offset int) ([]rag.Document, error) {
	return s.scrollDocs, nil
}

func (s *stubStore) DropCollection(ctx context.Context) error {
	s.dropped = true
	s.total = 0
	return nil
}

func (s *stubStore) Close() error { return nil }

func newTestDocumentService(store *stubStore) *DocumentService {
	pipeline := rag.NewIndexingPipeline(rag.NewChunker(5, 0), stubEmbedder{}, store, 10)
	return NewDocumentService(pipeline, store, nil, nil, testCollector, config.FileUploadConfig{
		AllowedTypes: []string{".txt", ".md"},
		MaxSize:      1024,
	})
}

func TestDocumentCreateRejectsEmptyContent(t *testing.T) {
	service := newTestDocumentService(&stubStore{})

	_, err := service.Create(context.Background(), "   ", nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDocumentCreateIndexesContent(t *testing.T) {
	store := &stubStore{}
	service := newTestDocumentService(store)

	result, err := service.Create(context.Background(), "some document content here", map[string]interface{}{"source": "api"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.DocumentID)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Contains(t, result.Message, "1 chunks")
	require.Len(t, store.written, 1)
	assert.Equal(t, "api", store.written[0].Metadata["source"])
	assert.Equal(t, result.DocumentID, store.written[0].Metadata["source_doc_id"])
}

func TestDocumentUploadRejectsUnsupportedExtension(t *testing.T) {
	service := newTestDocumentService(&stubStore{})

	_, err := service.Upload(context.Background(), "report.pdf", []byte("content"))
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeInvalidFileFormat, appErr.Code)
}

func TestDocumentUploadRejectsInvalidUTF8(t *testing.T) {
	service := newTestDocumentService(&stubStore{})

	_, err := service.Upload(context.Background(), "notes.txt", []byte{0xff, 0xfe, 0x01})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeInvalidFileFormat, appErr.Code)
}

func TestDocumentUploadRejectsOversizedFile(t *testing.T) {
	service := newTestDocumentService(&stubStore{})

	big := []byte(strings.Repeat("a", 2048))
	_, err := service.Upload(context.Background(), "big.txt", big)
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeFileTooLarge, appErr.Code)
}

func TestDocumentUploadIndexesWithFileMetadata(t *testing.T) {
	store := &stubStore{}
	service := newTestDocumentService(store)

	result, err := service.Upload(context.Background(), "notes.md", []byte("markdown content here"))
	require.NoError(t, err)
	assert.Contains(t, result.Message, "notes.md")
	require.Len(t, store.written, 1)
	assert.Equal(t, "notes.md", store.written[0].Metadata["filename"])
	assert.Equal(t, "file_upload", store.written[0].Metadata["source"])
}

func TestDocumentListReturnsPreviews(t *testing.T) {
	long := strings.Repeat("x", 300)
	store := &stubStore{
		total: 2,
		scrollDocs: []rag.Document{
			{ID: "a#0", Content: "short"},
			{ID: "b#0", Content: long},
		},
	}
	service := newTestDocumentService(store)

	list, err := service.List(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.TotalCount)
	require.Len(t, list.Documents, 2)
	assert.Equal(t, "short", list.Documents[0].ContentPreview)
	assert.Len(t, []rune(list.Documents[1].ContentPreview), 203)
	assert.True(t, strings.HasSuffix(list.Documents[1].ContentPreview, "..."))
}

func TestDocumentListEmptyStore(t *testing.T) {
	service := newTestDocumentService(&stubStore{total: 0})

	list, err := service.List(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Empty(t, list.Documents)
	assert.Equal(t, int64(0), list.TotalCount)
}

func TestDocumentDeleteNotFound(t *testing.T) {
	service := newTestDocumentService(&stubStore{filterMatches: 0})

	_, err := service.Delete(context.Background(), "missing-doc")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeResourceNotFound, appErr.Code)
}

func TestDocumentDeleteRemovesAllChunks(t *testing.T) {
	store := &stubStore{filterMatches: 3}
	service := newTestDocumentService(store)

	result, err := service.Delete(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.DeletedCount)
	assert.Equal(t, "doc-1", store.deleteFilters["source_doc_id"])
}

func TestDocumentDeleteAllRequiresConfirmation(t *testing.T) {
	service := newTestDocumentService(&stubStore{total: 5})

	_, err := service.DeleteAll(context.Background(), false)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDocumentDeleteAllDropsAndRecreates(t *testing.T) {
	store := &stubStore{total: 5}
	service := newTestDocumentService(store)

	result, err := service.DeleteAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.DeletedCount)
	assert.True(t, store.dropped)
	assert.Equal(t, 1, store.ensured)
}

func TestDocumentDeleteAllEmptyStore(t *testing.T) {
	store := &stubStore{total: 0}
	service := newTestDocumentService(store)

	result, err := service.DeleteAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.DeletedCount)
	assert.False(t, store.dropped)
}
