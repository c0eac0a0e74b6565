package services

import (
	"context"
	"time"

	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/rag"
	"github.com/quilora/backend-go/internal/storage"
	"go.uber.org/zap"
)

const apiVersion = "0.3.0"

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status        string `json:"status"`
	VectorStore   string `json:"vector_store"`
	Collection    string `json:"collection,omitempty"`
	DocumentCount int64  `json:"document_count"`
	ObjectStorage string `json:"object_storage,omitempty"`
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptime"`
	APIVersion    string `json:"api_version"`
	Error         string `json:"error,omitempty"`
}

// HealthService 健康检查服务
type HealthService struct {
	store      rag.DocumentStore
	archive    *storage.UploadArchive // 可选
	collection string
	startTime  time.Time
}

// NewHealthService 创建健康检查服务
func NewHealthService(store rag.DocumentStore, archive *storage.UploadArchive, collection string) *HealthService {
	return &HealthService{
		store:      store,
		archive:    archive,
		collection: collection,
		startTime:  time.Now(),
	}
}

// Check 探测向量存储连通性并返回文档计数。
// 向量存储不可达时healthy为false，对象存储状态只作附注不影响判定。
func (s *HealthService) Check(ctx context.Context) (*HealthStatus, bool) {
	status := &HealthStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		APIVersion:    apiVersion,
		Collection:    s.collection,
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		logger.Error("health check failed", zap.Error(err))
		status.Status = "unhealthy"
		status.VectorStore = "disconnected"
		status.Error = err.Error()
		return status, false
	}

	status.Status = "healthy"
	status.VectorStore = "connected"
	status.DocumentCount = count

	if s.archive != nil {
		if err := s.archive.HealthCheck(ctx); err != nil {
			status.ObjectStorage = "disconnected"
		} else {
			status.ObjectStorage = "connected"
		}
	}

	return status, true
}
