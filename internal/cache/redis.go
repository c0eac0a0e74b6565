package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/rag"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// QueryCache 同步查询结果的Redis缓存。可选组件：连接失败或
// 读写出错时静默放行，不影响主流程。
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueryCache 创建查询缓存并探测连接
func NewQueryCache(ctx context.Context, addr string, db int, ttl time.Duration) (*QueryCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	logger.Info("redis query cache connected", zap.String("addr", addr))
	return &QueryCache{client: rdb, ttl: ttl}, nil
}

// Key 由查询文本、top_k和filter内容推导缓存键。
// filter按key排序后参与哈希，保证等价请求命中同一键。
func (c *QueryCache) Key(query string, topK int, filters map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(query)
	fmt.Fprintf(&b, "|%d", topK)

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, filters[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return "query:" + hex.EncodeToString(sum[:16])
}

// Get 读取缓存的查询结果，未命中或出错返回nil
func (c *QueryCache) Get(ctx context.Context, key string) *rag.QueryResult {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		logger.Warn("query cache read failed", zap.Error(err))
		return nil
	}

	var result rag.QueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		logger.Warn("query cache entry corrupt, dropping", zap.String("key", key))
		c.client.Del(ctx, key)
		return nil
	}
	return &result
}

// Set 写入查询结果，失败只记日志
func (c *QueryCache) Set(ctx context.Context, key string, result *rag.QueryResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.Warn("query cache write failed", zap.Error(err))
	}
}

// Flush 清空所有缓存的查询结果（文档变更后调用，避免脏答案）
func (c *QueryCache) Flush(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, "query:*", 100).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Warn("query cache flush failed", zap.Error(err))
	}
}

// Close 关闭Redis连接
func (c *QueryCache) Close() error {
	return c.client.Close()
}
