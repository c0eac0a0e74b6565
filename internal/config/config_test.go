package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	require.NoError(t, LoadConfig())

	cfg := GetAppConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "documents", cfg.VectorStore.Collection)
	assert.Equal(t, 1536, cfg.VectorStore.VectorSize)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retry.EmbedAttempts)
	assert.Equal(t, 2, cfg.Retry.SearchAttempts)
	assert.Equal(t, 60, cfg.OpenAI.GenerationTimeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7333")
	t.Setenv("QDRANT_COLLECTION_NAME", "kb")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	require.NoError(t, LoadConfig())

	cfg := GetAppConfig()
	assert.Equal(t, "http://qdrant.internal:7333", cfg.VectorStore.Qdrant.Endpoint)
	assert.Equal(t, "kb", cfg.VectorStore.Collection)
	assert.Equal(t, "text-embedding-3-large", cfg.OpenAI.EmbeddingModel)
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := &Config{
		VectorStore: VectorStoreConfig{Provider: "qdrant", VectorSize: 1536},
	}
	assert.Error(t, cfg.Validate())

	cfg.OpenAI.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{
		OpenAI:      OpenAIConfig{APIKey: "sk-test"},
		VectorStore: VectorStoreConfig{Provider: "pinecone", VectorSize: 1536},
	}
	assert.Error(t, cfg.Validate())

	cfg.VectorStore.Provider = "milvus"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveVectorSize(t *testing.T) {
	cfg := &Config{
		OpenAI:      OpenAIConfig{APIKey: "sk-test"},
		VectorStore: VectorStoreConfig{Provider: "qdrant"},
	}
	assert.Error(t, cfg.Validate())
}
