package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/quilora/backend-go/internal/logger"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	VectorSize int
	Distance   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
}

// NewMilvusStore 创建Milvus文档存储并确保集合存在
func NewMilvusStore(ctx context.Context, opts MilvusOptions) (DocumentStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "documents"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	s := &milvusStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}

	if err := s.EnsureCollection(ctx); err != nil {
		milvusClient.Close()
		return nil, fmt.Errorf("milvus: ensure collection %s: %w", s.collection, err)
	}

	return s, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN", "EUCLID":
		return "L2"
	default:
		return "COSINE"
	}
}

// EnsureCollection 幂等建集合并加载进内存
func (s *milvusStore) EnsureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "RAG document chunks",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{
						"max_length": "64",
					},
				},
				{
					Name:     "doc_id",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "256",
					},
				},
				{
					Name:     "content",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "metadata",
					DataType: entity.FieldTypeJSON,
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.vectorSize),
					},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		var index entity.Index
		var indexErr error
		index, indexErr = entity.NewIndexHNSW(entity.MetricType(s.distance), 8, 64)
		if indexErr != nil {
			// HNSW不可用时降级为IVF_FLAT
			index, indexErr = entity.NewIndexIvfFlat(entity.MetricType(s.distance), 128)
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
			logger.Warn("failed to create milvus index",
				zap.String("collection", s.collection), zap.Error(err))
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		logger.Warn("failed to load milvus collection",
			zap.String("collection", s.collection), zap.Error(err))
	}

	logger.Info("milvus collection ready",
		zap.String("collection", s.collection),
		zap.Int("vector_size", s.vectorSize),
		zap.String("distance", s.distance))
	return nil
}

// Write 批量upsert。主键由doc_id确定性推导，重复写入覆盖旧值
func (s *milvusStore) Write(ctx context.Context, docs []Document, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	valid := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Embedding == nil {
			logger.Warn("document has no embedding, skipping", zap.String("doc_id", doc.ID))
			continue
		}
		valid = append(valid, doc)
	}

	if len(valid) == 0 {
		logger.Warn("no valid points to write")
		return 0, nil
	}

	written := 0
	for start := 0; start < len(valid); start += batchSize {
		end := start + batchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		ids := make([]string, len(batch))
		docIDs := make([]string, len(batch))
		contents := make([]string, len(batch))
		metadatas := make([][]byte, len(batch))
		vectors := make([][]float32, len(batch))
		for i, doc := range batch {
			ids[i] = PointID(doc.ID)
			docIDs[i] = doc.ID
			contents[i] = doc.Content
			raw, err := json.Marshal(doc.Metadata)
			if err != nil || doc.Metadata == nil {
				raw = []byte("{}")
			}
			metadatas[i] = raw
			vectors[i] = doc.Embedding
		}

		_, err := s.milvusClient.Upsert(ctx, s.collection, "",
			entity.NewColumnVarChar("id", ids),
			entity.NewColumnVarChar("doc_id", docIDs),
			entity.NewColumnVarChar("content", contents),
			entity.NewColumnJSONBytes("metadata", metadatas),
			entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
		)
		if err != nil {
			return written, fmt.Errorf("milvus upsert failed: %w", err)
		}

		written += len(batch)
		logger.Debug("wrote batch to milvus", zap.Int("batch_size", len(batch)))
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush milvus collection", zap.Error(err))
	}

	logger.Info("documents written to milvus", zap.Int("count", written))
	return written, nil
}

// Search top-k相似检索。相似度阈值在客户端侧过滤，
// metadata filter翻译为JSON路径表达式
func (s *milvusStore) Search(ctx context.Context, req SearchRequest) ([]Document, error) {
	if req.TopK <= 0 {
		req.TopK = 5
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	expr := buildMilvusFilterExpr(req.Filters)

	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"doc_id", "content", "metadata"},
		[]entity.Vector{entity.FloatVector(req.Vector)},
		"vector",
		entity.MetricType(s.distance),
		req.TopK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return []Document{}, nil
	}

	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	docs := documentsFromMilvusFields(result.Fields, result.ResultCount)
	for i := range docs {
		if i < len(result.Scores) {
			docs[i].Score = float64(result.Scores[i])
		}
	}

	if req.ScoreThreshold > 0 {
		filtered := docs[:0]
		for _, doc := range docs {
			if doc.Score >= req.ScoreThreshold {
				filtered = append(filtered, doc)
			}
		}
		docs = filtered
	}

	logger.Debug("milvus search done", zap.Int("results", len(docs)))
	return docs, nil
}

// Delete 按ID列表或filter删除。Milvus的删除表达式同步执行，
// 两种方式删除的数量都以请求侧信息为准
func (s *milvusStore) Delete(ctx context.Context, ids []string, filters map[string]interface{}) (DeleteResult, error) {
	var expr string
	switch {
	case len(ids) > 0:
		quoted := make([]string, len(ids))
		for i, id := range ids {
			quoted[i] = strconv.Quote(PointID(id))
		}
		expr = fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))
	case len(filters) > 0:
		expr = buildMilvusFilterExpr(filters)
	default:
		logger.Warn("delete called without ids or filters")
		return DeleteResult{Count: 0, CountKnown: true}, nil
	}

	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return DeleteResult{}, fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush after delete", zap.Error(err))
	}

	if len(ids) > 0 {
		return DeleteResult{Count: len(ids), CountKnown: true}, nil
	}
	return DeleteResult{CountKnown: false}, nil
}

// Count 集合内实体总数
func (s *milvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := s.milvusClient.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("milvus collection statistics failed: %w", err)
	}
	raw, ok := stats["row_count"]
	if !ok {
		return 0, nil
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid row_count %q: %w", raw, err)
	}
	return count, nil
}

// CountByFilter 满足filter条件的实体数
func (s *milvusStore) CountByFilter(ctx context.Context, filters map[string]interface{}) (int64, error) {
	expr := buildMilvusFilterExpr(filters)
	if expr == "" {
		return s.Count(ctx)
	}

	resultSet, err := s.milvusClient.Query(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"count(*)"},
	)
	if err != nil {
		return 0, fmt.Errorf("milvus count query failed: %w", err)
	}
	for _, column := range resultSet {
		if col, ok := column.(*entity.ColumnInt64); ok && len(col.Data()) > 0 {
			return col.Data()[0], nil
		}
	}
	return 0, nil
}

// Scroll 分页读取存储的分块，不带向量
func (s *milvusStore) Scroll(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}

	resultSet, err := s.milvusClient.Query(
		ctx,
		s.collection,
		[]string{},
		"id != \"\"",
		[]string{"doc_id", "content", "metadata"},
		client.WithLimit(int64(limit)),
		client.WithOffset(int64(offset)),
	)
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	count := 0
	for _, column := range resultSet {
		if column.Len() > count {
			count = column.Len()
		}
	}
	return documentsFromMilvusFields(resultSet, count), nil
}

// DropCollection 不可逆地删除整个集合
func (s *milvusStore) DropCollection(ctx context.Context) error {
	if err := s.milvusClient.DropCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("milvus drop collection failed: %w", err)
	}
	logger.Warn("milvus collection dropped", zap.String("collection", s.collection))
	return nil
}

func (s *milvusStore) Close() error {
	return s.milvusClient.Close()
}

// buildMilvusFilterExpr 扁平等值filter转Milvus布尔表达式，
// key落在metadata JSON字段内
func buildMilvusFilterExpr(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return ""
	}
	conditions := make([]string, 0, len(filters))
	for key, value := range filters {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, fmt.Sprintf("metadata[%s] == %s", strconv.Quote(key), strconv.Quote(v)))
		case bool:
			conditions = append(conditions, fmt.Sprintf("metadata[%s] == %t", strconv.Quote(key), v))
		default:
			conditions = append(conditions, fmt.Sprintf("metadata[%s] == %v", strconv.Quote(key), v))
		}
	}
	return strings.Join(conditions, " and ")
}

// documentsFromMilvusFields 从查询/检索返回的列数据还原Document列表
func documentsFromMilvusFields(fields []entity.Column, count int) []Document {
	var docIDs, contents []string
	var metadatas [][]byte

	for _, field := range fields {
		switch field.Name() {
		case "doc_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				docIDs = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		case "metadata":
			if col, ok := field.(*entity.ColumnJSONBytes); ok {
				metadatas = col.Data()
			}
		}
	}

	docs := make([]Document, 0, count)
	for i := 0; i < count; i++ {
		doc := Document{Metadata: make(map[string]interface{})}
		if i < len(docIDs) {
			doc.ID = docIDs[i]
		}
		if i < len(contents) {
			doc.Content = contents[i]
		}
		if i < len(metadatas) {
			var meta map[string]interface{}
			if err := json.Unmarshal(metadatas[i], &meta); err == nil && meta != nil {
				doc.Metadata = meta
			}
		}
		docs = append(docs, doc)
	}
	return docs
}
