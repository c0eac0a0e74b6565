package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	OpenAI      OpenAIConfig
	VectorStore VectorStoreConfig
	Chunking    ChunkingConfig
	Retrieval   RetrievalConfig
	Retry       RetryConfig
	Redis       RedisConfig
	Storage     ObjectStorageConfig
	FileUpload  FileUploadConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	EmbeddingModel    string
	ChatModel         string
	Temperature       float64
	MaxTokens         int
	GenerationTimeout int // 生成阶段超时（秒）
}

type VectorStoreConfig struct {
	Provider string // qdrant | milvus
	Qdrant   QdrantConfig
	Milvus   MilvusConfig
	// 所有后端共享的集合参数
	Collection string
	VectorSize int
	Distance   string
	BatchSize  int
}

type QdrantConfig struct {
	Endpoint string
	APIKey   string
	UseTLS   bool
	Timeout  int // 秒
}

type MilvusConfig struct {
	Address  string
	Username string
	Password string
	Database string
	TLS      bool
}

type ChunkingConfig struct {
	ChunkSize    int // 单位：词
	ChunkOverlap int
}

type RetrievalConfig struct {
	TopK               int
	MinSimilarityScore float64
}

type RetryConfig struct {
	EmbedAttempts  int
	SearchAttempts int
	BaseBackoffMS  int
	MaxBackoffMS   int
}

type RedisConfig struct {
	Host    string
	Port    string
	DB      int
	TTL     int // 查询缓存TTL（秒）
	Enabled bool
}

type ObjectStorageConfig struct {
	Provider  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type FileUploadConfig struct {
	AllowedTypes []string
	MaxSize      int64
}

var AppConfig *Config

// LoadConfig 加载配置：先写入默认值，再用环境变量覆盖。
// 可重复调用，每次从干净状态重建。
func LoadConfig() error {
	viper.Reset()

	// 服务默认值
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")

	// OpenAI默认值
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("openai.chat_model", "gpt-4o-mini")
	viper.SetDefault("openai.temperature", 0.7)
	viper.SetDefault("openai.max_tokens", 1024)
	viper.SetDefault("openai.generation_timeout", 60)

	// 向量存储默认值
	viper.SetDefault("vector_store.provider", "qdrant")
	viper.SetDefault("vector_store.collection", "documents")
	viper.SetDefault("vector_store.vector_size", 1536)
	viper.SetDefault("vector_store.distance", "cosine")
	viper.SetDefault("vector_store.batch_size", 100)
	viper.SetDefault("vector_store.qdrant.endpoint", "http://localhost:6333")
	viper.SetDefault("vector_store.qdrant.timeout", 10)
	viper.SetDefault("vector_store.milvus.address", "localhost:19530")
	viper.SetDefault("vector_store.milvus.database", "default")
	viper.SetDefault("vector_store.milvus.tls", false)

	// 分块默认值（按词计数）
	viper.SetDefault("chunking.chunk_size", 512)
	viper.SetDefault("chunking.chunk_overlap", 50)

	// 检索默认值
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.min_similarity_score", 0.5)

	// 重试默认值
	viper.SetDefault("retry.embed_attempts", 3)
	viper.SetDefault("retry.search_attempts", 2)
	viper.SetDefault("retry.base_backoff_ms", 200)
	viper.SetDefault("retry.max_backoff_ms", 2000)

	// Redis查询缓存默认值（可选组件）
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 300)
	viper.SetDefault("redis.enabled", false)

	// 对象存储默认值（可选，用于归档上传的原始文件）
	viper.SetDefault("storage.provider", "")
	viper.SetDefault("storage.bucket", "quilora-uploads")
	viper.SetDefault("storage.use_ssl", false)

	// 文件上传默认值
	viper.SetDefault("file_upload.allowed_types", []string{".txt", ".md"})
	viper.SetDefault("file_upload.max_size", 10485760) // 10MB

	viper.SetEnvPrefix("QUILORA")
	viper.AutomaticEnv()

	// 常用环境变量（不带前缀，兼容部署脚本）
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if env := os.Getenv("ENV"); env != "" {
		viper.Set("server.env", env)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		viper.Set("openai.api_key", key)
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		viper.Set("openai.base_url", baseURL)
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		viper.Set("openai.embedding_model", model)
	}
	if model := os.Getenv("CHAT_MODEL"); model != "" {
		viper.Set("openai.chat_model", model)
	}
	if provider := os.Getenv("VECTOR_STORE_PROVIDER"); provider != "" {
		viper.Set("vector_store.provider", strings.ToLower(provider))
	}
	if url := os.Getenv("QDRANT_URL"); url != "" {
		viper.Set("vector_store.qdrant.endpoint", url)
	} else if host := os.Getenv("QDRANT_HOST"); host != "" {
		port := os.Getenv("QDRANT_PORT")
		if port == "" {
			port = "6333"
		}
		viper.Set("vector_store.qdrant.endpoint", fmt.Sprintf("http://%s:%s", host, port))
	}
	if apiKey := os.Getenv("QDRANT_API_KEY"); apiKey != "" {
		viper.Set("vector_store.qdrant.api_key", apiKey)
	}
	if collection := os.Getenv("QDRANT_COLLECTION_NAME"); collection != "" {
		viper.Set("vector_store.collection", collection)
	}
	if addr := os.Getenv("MILVUS_ADDRESS"); addr != "" {
		viper.Set("vector_store.milvus.address", addr)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
		viper.Set("redis.enabled", true)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		viper.Set("storage.endpoint", minioEndpoint)
		viper.Set("storage.provider", "minio")
	}
	if minioAccessKey := os.Getenv("MINIO_ACCESS_KEY"); minioAccessKey != "" {
		viper.Set("storage.access_key", minioAccessKey)
	}
	if minioSecretKey := os.Getenv("MINIO_SECRET_KEY"); minioSecretKey != "" {
		viper.Set("storage.secret_key", minioSecretKey)
	}
	if minioBucket := os.Getenv("MINIO_BUCKET"); minioBucket != "" {
		viper.Set("storage.bucket", minioBucket)
	}

	AppConfig = &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		OpenAI: OpenAIConfig{
			APIKey:            viper.GetString("openai.api_key"),
			BaseURL:           viper.GetString("openai.base_url"),
			EmbeddingModel:    viper.GetString("openai.embedding_model"),
			ChatModel:         viper.GetString("openai.chat_model"),
			Temperature:       viper.GetFloat64("openai.temperature"),
			MaxTokens:         viper.GetInt("openai.max_tokens"),
			GenerationTimeout: viper.GetInt("openai.generation_timeout"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   viper.GetString("vector_store.provider"),
			Collection: viper.GetString("vector_store.collection"),
			VectorSize: viper.GetInt("vector_store.vector_size"),
			Distance:   viper.GetString("vector_store.distance"),
			BatchSize:  viper.GetInt("vector_store.batch_size"),
			Qdrant: QdrantConfig{
				Endpoint: viper.GetString("vector_store.qdrant.endpoint"),
				APIKey:   viper.GetString("vector_store.qdrant.api_key"),
				UseTLS:   viper.GetBool("vector_store.qdrant.use_tls"),
				Timeout:  viper.GetInt("vector_store.qdrant.timeout"),
			},
			Milvus: MilvusConfig{
				Address:  viper.GetString("vector_store.milvus.address"),
				Username: viper.GetString("vector_store.milvus.username"),
				Password: viper.GetString("vector_store.milvus.password"),
				Database: viper.GetString("vector_store.milvus.database"),
				TLS:      viper.GetBool("vector_store.milvus.tls"),
			},
		},
		Chunking: ChunkingConfig{
			ChunkSize:    viper.GetInt("chunking.chunk_size"),
			ChunkOverlap: viper.GetInt("chunking.chunk_overlap"),
		},
		Retrieval: RetrievalConfig{
			TopK:               viper.GetInt("retrieval.top_k"),
			MinSimilarityScore: viper.GetFloat64("retrieval.min_similarity_score"),
		},
		Retry: RetryConfig{
			EmbedAttempts:  viper.GetInt("retry.embed_attempts"),
			SearchAttempts: viper.GetInt("retry.search_attempts"),
			BaseBackoffMS:  viper.GetInt("retry.base_backoff_ms"),
			MaxBackoffMS:   viper.GetInt("retry.max_backoff_ms"),
		},
		Redis: RedisConfig{
			Host:    viper.GetString("redis.host"),
			Port:    viper.GetString("redis.port"),
			DB:      viper.GetInt("redis.db"),
			TTL:     viper.GetInt("redis.ttl"),
			Enabled: viper.GetBool("redis.enabled"),
		},
		Storage: ObjectStorageConfig{
			Provider:  viper.GetString("storage.provider"),
			Endpoint:  viper.GetString("storage.endpoint"),
			AccessKey: viper.GetString("storage.access_key"),
			SecretKey: viper.GetString("storage.secret_key"),
			Bucket:    viper.GetString("storage.bucket"),
			UseSSL:    viper.GetBool("storage.use_ssl"),
		},
		FileUpload: FileUploadConfig{
			AllowedTypes: viper.GetStringSlice("file_upload.allowed_types"),
			MaxSize:      viper.GetInt64("file_upload.max_size"),
		},
	}

	return nil
}

// Validate 校验启动必需的配置项，缺失时拒绝启动
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	switch c.VectorStore.Provider {
	case "qdrant", "milvus":
	default:
		return fmt.Errorf("unsupported vector store provider: %s", c.VectorStore.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive")
	}
	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}
