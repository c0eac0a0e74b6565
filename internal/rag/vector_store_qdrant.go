package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quilora/backend-go/internal/logger"
	"go.uber.org/zap"
)

// QdrantOptions Qdrant客户端配置
type QdrantOptions struct {
	Endpoint   string
	APIKey     string
	Collection string
	VectorSize int
	Distance   string
	UseTLS     bool
	Timeout    time.Duration
}

type qdrantStore struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	collection string
	vectorSize int
	distance   string
}

// NewQdrantStore 创建Qdrant文档存储并确保集合存在。
// 集合创建失败（如网络不可达）视为致命的构造错误。
func NewQdrantStore(ctx context.Context, opts QdrantOptions) (DocumentStore, error) {
	if opts.Endpoint == "" {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://localhost:6333", scheme)
	}
	if !strings.HasPrefix(opts.Endpoint, "http") {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://%s", scheme, opts.Endpoint)
	}
	if opts.Collection == "" {
		opts.Collection = "documents"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	s := &qdrantStore{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		vectorSize: opts.VectorSize,
		distance:   formatQdrantDistance(opts.Distance),
	}

	if err := s.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("qdrant: ensure collection %s: %w", s.collection, err)
	}

	return s, nil
}

func formatQdrantDistance(value string) string {
	switch strings.ToLower(value) {
	case "dot", "dotproduct":
		return "Dot"
	case "euclid", "l2":
		return "Euclid"
	default:
		return "Cosine"
	}
}

// EnsureCollection 幂等建集合
func (s *qdrantStore) EnsureCollection(ctx context.Context) error {
	resp, err := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", s.collection), nil)
	if err == nil && resp.StatusCode == http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": s.distance,
		},
	}
	resp, err = s.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create collection failed: %s %s", resp.Status, string(raw))
	}

	logger.Info("qdrant collection ready",
		zap.String("collection", s.collection),
		zap.Int("vector_size", s.vectorSize),
		zap.String("distance", s.distance))
	return nil
}

// Write 批量upsert。point ID由doc_id确定性推导，payload合并
// content、doc_id和全部metadata字段。
func (s *qdrantStore) Write(ctx context.Context, docs []Document, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	points := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		if doc.Embedding == nil {
			logger.Warn("document has no embedding, skipping", zap.String("doc_id", doc.ID))
			continue
		}

		payload := map[string]interface{}{
			"content": doc.Content,
			"doc_id":  doc.ID,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		points = append(points, map[string]interface{}{
			"id":      PointID(doc.ID),
			"vector":  doc.Embedding,
			"payload": payload,
		})
	}

	if len(points) == 0 {
		logger.Warn("no valid points to write")
		return 0, nil
	}

	written := 0
	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]

		body := map[string]interface{}{"points": batch}
		resp, err := s.doRequest(ctx, http.MethodPut,
			fmt.Sprintf("/collections/%s/points?wait=true", s.collection), body)
		if err != nil {
			return written, fmt.Errorf("qdrant upsert: %w", err)
		}
		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return written, fmt.Errorf("qdrant upsert failed: %s %s", resp.Status, string(raw))
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		written += len(batch)
		logger.Debug("wrote batch to qdrant", zap.Int("batch_size", len(batch)))
	}

	logger.Info("documents written to qdrant", zap.Int("count", written))
	return written, nil
}

// Search top-k相似检索，可选等值filter与相似度阈值
func (s *qdrantStore) Search(ctx context.Context, req SearchRequest) ([]Document, error) {
	if req.TopK <= 0 {
		req.TopK = 5
	}

	body := map[string]interface{}{
		"vector":       req.Vector,
		"limit":        req.TopK,
		"with_payload": true,
		"with_vector":  false,
	}
	if req.ScoreThreshold > 0 {
		body["score_threshold"] = req.ScoreThreshold
	}
	if filter := buildQdrantFilter(req.Filters); filter != nil {
		body["filter"] = filter
	}

	resp, err := s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", s.collection), body)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant search failed: %s %s", resp.Status, string(raw))
	}

	var searchResp struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(searchResp.Result))
	for _, item := range searchResp.Result {
		doc := documentFromPayload(item.Payload)
		doc.Score = item.Score
		docs = append(docs, doc)
	}

	logger.Debug("qdrant search done", zap.Int("results", len(docs)))
	return docs, nil
}

// Delete 按ID列表或filter删除
func (s *qdrantStore) Delete(ctx context.Context, ids []string, filters map[string]interface{}) (DeleteResult, error) {
	if len(ids) > 0 {
		pointIDs := make([]string, len(ids))
		for i, id := range ids {
			pointIDs[i] = PointID(id)
		}
		body := map[string]interface{}{"points": pointIDs}
		if err := s.doDelete(ctx, body); err != nil {
			return DeleteResult{}, err
		}
		// 按请求的ID数量计数，不独立核实存在性
		return DeleteResult{Count: len(ids), CountKnown: true}, nil
	}

	if len(filters) > 0 {
		body := map[string]interface{}{"filter": buildQdrantFilter(filters)}
		if err := s.doDelete(ctx, body); err != nil {
			return DeleteResult{}, err
		}
		// Qdrant不报告filter删除的数量
		return DeleteResult{CountKnown: false}, nil
	}

	logger.Warn("delete called without ids or filters")
	return DeleteResult{Count: 0, CountKnown: true}, nil
}

func (s *qdrantStore) doDelete(ctx context.Context, body map[string]interface{}) error {
	resp, err := s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection), body)
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant delete failed: %s %s", resp.Status, string(raw))
	}
	return nil
}

// Count 集合内point总数
func (s *qdrantStore) Count(ctx context.Context) (int64, error) {
	resp, err := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", s.collection), nil)
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("qdrant collection info failed: %s %s", resp.Status, string(raw))
	}

	var infoResp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&infoResp); err != nil {
		return 0, err
	}
	return infoResp.Result.PointsCount, nil
}

// CountByFilter 满足filter条件的point数，走精确计数
func (s *qdrantStore) CountByFilter(ctx context.Context, filters map[string]interface{}) (int64, error) {
	body := map[string]interface{}{"exact": true}
	if filter := buildQdrantFilter(filters); filter != nil {
		body["filter"] = filter
	}

	resp, err := s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/count", s.collection), body)
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("qdrant count failed: %s %s", resp.Status, string(raw))
	}

	var countResp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&countResp); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

// Scroll 分页读取存储的分块，不带向量
func (s *qdrantStore) Scroll(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	body := map[string]interface{}{
		"limit":        limit,
		"offset":       offset,
		"with_payload": true,
		"with_vector":  false,
	}

	resp, err := s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/scroll", s.collection), body)
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant scroll failed: %s %s", resp.Status, string(raw))
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID      interface{}            `json:"id"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&scrollResp); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(scrollResp.Result.Points))
	for _, point := range scrollResp.Result.Points {
		doc := documentFromPayload(point.Payload)
		if doc.ID == "" {
			doc.ID = fmt.Sprint(point.ID)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DropCollection 不可逆地删除整个集合
func (s *qdrantStore) DropCollection(ctx context.Context) error {
	resp, err := s.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", s.collection), nil)
	if err != nil {
		return fmt.Errorf("qdrant drop collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant drop collection failed: %s %s", resp.Status, string(raw))
	}

	logger.Warn("qdrant collection dropped", zap.String("collection", s.collection))
	return nil
}

// Close HTTP客户端无需显式关闭
func (s *qdrantStore) Close() error {
	return nil
}

// buildQdrantFilter 把扁平等值filter翻译成Qdrant的must条件（AND语义）
func buildQdrantFilter(filters map[string]interface{}) map[string]interface{} {
	if len(filters) == 0 {
		return nil
	}
	must := make([]map[string]interface{}, 0, len(filters))
	for key, value := range filters {
		must = append(must, map[string]interface{}{
			"key": key,
			"match": map[string]interface{}{
				"value": value,
			},
		})
	}
	return map[string]interface{}{"must": must}
}

// documentFromPayload 从point payload还原Document，
// content与doc_id从metadata回显中剥除
func documentFromPayload(payload map[string]interface{}) Document {
	doc := Document{Metadata: make(map[string]interface{})}
	for k, v := range payload {
		switch k {
		case "content":
			if content, ok := v.(string); ok {
				doc.Content = content
			}
		case "doc_id":
			if id, ok := v.(string); ok {
				doc.ID = id
			}
		default:
			doc.Metadata[k] = v
		}
	}
	return doc
}

func (s *qdrantStore) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	return s.client.Do(req)
}
