package rag

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Document RAG系统中的文档单元。索引时由调用方构造，
// 检索时从存储的point payload还原。
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Embedding []float32              `json:"-"`
	Score     float64                `json:"score,omitempty"`
}

// PointID 由文档ID确定性推导point标识。
// ID Scheme v1：MD5摘要按8-4-4-4-12分段成UUID形状的字符串。
// MD5在这里只作稳定哈希用，不承担任何密码学安全假设；
// 同一个ID重复写入会覆盖同一个point，实现按ID的幂等写。
func PointID(docID string) string {
	sum := md5.Sum([]byte(docID))
	h := hex.EncodeToString(sum[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[:8], h[8:12], h[12:16], h[16:20], h[20:])
}

// ChunkID 为逻辑文档的第n个分块生成上游ID。
// 分块必须有各自独立的ID，否则所有分块会坍缩到同一个point上。
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s#%d", docID, index)
}
