package rag

import "context"

// SearchRequest 向量检索请求
type SearchRequest struct {
	Vector []float32
	TopK   int
	// Filters 元数据精确匹配条件，多个key之间为AND关系。
	// 不支持OR、范围和取反。
	Filters map[string]interface{}
	// ScoreThreshold 相似度下限，<=0 表示不过滤
	ScoreThreshold float64
}

// DeleteResult 删除结果。按ID删除时Count为精确数量；
// 按filter删除时底层存储不报告数量，CountKnown为false，
// 调用方不得把Count当成真实计数使用。
type DeleteResult struct {
	Count      int
	CountKnown bool
}

// DocumentStore 向量存储抽象：屏蔽远端向量库的wire协议
type DocumentStore interface {
	// EnsureCollection 幂等建集合，已存在时为no-op
	EnsureCollection(ctx context.Context) error
	// Write 批量写入带embedding的文档，返回实际写入的point数。
	// 无embedding的文档跳过不计数；某批失败时中止后续批次，
	// 已写入的批次不回滚。
	Write(ctx context.Context, docs []Document, batchSize int) (int, error)
	// Search top-k相似检索。无命中返回空切片而非错误
	Search(ctx context.Context, req SearchRequest) ([]Document, error)
	// Delete 按ID列表或filter删除，二者都为空时no-op
	Delete(ctx context.Context, ids []string, filters map[string]interface{}) (DeleteResult, error)
	// Count 集合内point总数
	Count(ctx context.Context) (int64, error)
	// CountByFilter 满足filter条件的point数（用于删除前的存在性判定）
	CountByFilter(ctx context.Context, filters map[string]interface{}) (int64, error)
	// Scroll 分页读取存储的分块（用于文档列表接口）
	Scroll(ctx context.Context, limit, offset int) ([]Document, error)
	// DropCollection 不可逆地删除整个集合，调用方自行做确认保护
	DropCollection(ctx context.Context) error
	Close() error
}
