package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/quilora/backend-go/internal/config"
	"github.com/quilora/backend-go/internal/logger"
	"go.uber.org/zap"
)

// UploadArchive 上传文件归档。可选组件：未配置对象存储时为nil，
// 归档失败不阻断索引流程。
type UploadArchive struct {
	client *minio.Client
	bucket string
}

// NewUploadArchive 创建MinIO归档客户端并确保bucket存在
func NewUploadArchive(ctx context.Context, cfg config.ObjectStorageConfig) (*UploadArchive, error) {
	if cfg.Provider != "minio" && cfg.Provider != "s3" {
		return nil, fmt.Errorf("object storage provider is not minio/s3")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "quilora-uploads"
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		if err != nil {
			errStr := err.Error()
			if !strings.Contains(errStr, "BucketAlreadyExists") &&
				!strings.Contains(errStr, "BucketAlreadyOwnedByYou") {
				return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
	}

	logger.Info("upload archive ready", zap.String("bucket", bucket))
	return &UploadArchive{client: client, bucket: bucket}, nil
}

// ArchiveUpload 归档一份上传的原始文件，对象键为uploads/<docID>/<filename>
func (a *UploadArchive) ArchiveUpload(ctx context.Context, docID, filename string, file io.Reader, size int64) error {
	objectKey := fmt.Sprintf("uploads/%s/%s", docID, filename)
	_, err := a.client.PutObject(ctx, a.bucket, objectKey, file, size, minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	if err != nil {
		return fmt.Errorf("failed to archive upload %s: %w", objectKey, err)
	}
	logger.Debug("upload archived", zap.String("object_key", objectKey))
	return nil
}

// FetchUpload 取回归档的原始文件
func (a *UploadArchive) FetchUpload(ctx context.Context, docID, filename string) (io.ReadCloser, error) {
	objectKey := fmt.Sprintf("uploads/%s/%s", docID, filename)
	object, err := a.client.GetObject(ctx, a.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return object, nil
}

// RemoveUploads 删除某个文档的全部归档对象
func (a *UploadArchive) RemoveUploads(ctx context.Context, docID string) error {
	prefix := fmt.Sprintf("uploads/%s/", docID)
	objectCh := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return object.Err
		}
		if err := a.client.RemoveObject(ctx, a.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// PresignedURL 生成归档文件的预签名访问URL
func (a *UploadArchive) PresignedURL(ctx context.Context, docID, filename string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = 24 * time.Hour
	}
	objectKey := fmt.Sprintf("uploads/%s/%s", docID, filename)
	url, err := a.client.PresignedGetObject(ctx, a.bucket, objectKey, expires, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

// HealthCheck 探测对象存储可用性
func (a *UploadArchive) HealthCheck(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}
