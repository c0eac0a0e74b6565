package rag

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/quilora/backend-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexingRejectsEmptyInput(t *testing.T) {
	pipeline := NewIndexingPipeline(NewChunker(10, 0), &fakeEmbedder{}, &fakeStore{}, 10)

	_, err := pipeline.Index(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = pipeline.Index(context.Background(), []Document{{ID: "d1", Content: "   "}})
	assert.True(t, apperrors.IsValidation(err))
}

func TestIndexingRequiresDocumentID(t *testing.T) {
	pipeline := NewIndexingPipeline(NewChunker(10, 0), &fakeEmbedder{}, &fakeStore{}, 10)

	_, err := pipeline.Index(context.Background(), []Document{{Content: "some text"}})
	assert.True(t, apperrors.IsValidation(err))
}

func TestIndexingChunksAndWrites(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	pipeline := NewIndexingPipeline(NewChunker(5, 0), embedder, store, 10)

	words := strings.Repeat("word ", 12)
	result, err := pipeline.Index(context.Background(), []Document{
		{ID: "d1", Content: words, Metadata: map[string]interface{}{"category": "tech"}},
	})
	require.NoError(t, err)

	// 12词、每块5词、无重叠 => 3块
	assert.Equal(t, 3, result.ChunksWritten)
	assert.Equal(t, 1, result.DocumentsIn)
	require.Len(t, store.written, 3)

	for i, doc := range store.written {
		assert.Equal(t, ChunkID("d1", i), doc.ID)
		assert.Equal(t, "tech", doc.Metadata["category"])
		assert.Equal(t, i, doc.Metadata["chunk_index"])
		assert.Equal(t, "d1", doc.Metadata["source_doc_id"])
		assert.NotNil(t, doc.Embedding)
	}
}

func TestIndexingEmbedFailureAbortsBatch(t *testing.T) {
	embedder := &fakeEmbedder{failFirst: 1}
	store := &fakeStore{}
	pipeline := NewIndexingPipeline(NewChunker(5, 0), embedder, store, 10)

	_, err := pipeline.Index(context.Background(), []Document{
		{ID: "d1", Content: "some content here"},
	})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeExternalService, appErr.Code)

	// 整批向量化失败时不得写入任何分块
	assert.Equal(t, 0, store.writeCalls)
	assert.Empty(t, store.written)
}

func TestIndexingSkipsEmptyDocumentsInBatch(t *testing.T) {
	store := &fakeStore{}
	pipeline := NewIndexingPipeline(NewChunker(5, 0), &fakeEmbedder{}, store, 10)

	result, err := pipeline.Index(context.Background(), []Document{
		{ID: "d1", Content: "real content"},
		{ID: "d2", Content: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.DocumentsIn)
	assert.Equal(t, 1, result.ChunksWritten)
}
