package services

import (
	"context"
	"time"

	"github.com/quilora/backend-go/internal/cache"
	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/metrics"
	"github.com/quilora/backend-go/internal/rag"
	"go.uber.org/zap"
)

// QueryService 查询服务：在检索流水线外围叠加缓存与指标
type QueryService struct {
	pipeline  *rag.RetrievalPipeline
	cache     *cache.QueryCache // 可选，nil时不缓存
	collector *metrics.Collector
}

// NewQueryService 创建查询服务。cache为nil时同步查询不走缓存。
func NewQueryService(pipeline *rag.RetrievalPipeline, queryCache *cache.QueryCache, collector *metrics.Collector) *QueryService {
	return &QueryService{
		pipeline:  pipeline,
		cache:     queryCache,
		collector: collector,
	}
}

// Query 同步查询。命中缓存直接返回，否则走完整流水线并回填
func (s *QueryService) Query(ctx context.Context, input rag.QueryInput) (*rag.QueryResult, error) {
	var key string
	if s.cache != nil {
		key = s.cache.Key(input.Query, input.TopK, input.Filters)
		if cached := s.cache.Get(ctx, key); cached != nil {
			logger.Debug("query cache hit", zap.String("key", key))
			s.collector.RecordRequest("query", nil)
			return cached, nil
		}
	}

	result, err := s.pipeline.Query(ctx, input)
	s.collector.RecordRequest("query", err)
	if err != nil {
		return nil, err
	}

	s.collector.ObserveStage("embed", time.Duration(result.Metadata.EmbedMS)*time.Millisecond)
	s.collector.ObserveStage("search", time.Duration(result.Metadata.SearchMS)*time.Millisecond)
	s.collector.ObserveStage("generate", time.Duration(result.Metadata.GenerateMS)*time.Millisecond)

	if s.cache != nil {
		s.cache.Set(ctx, key, result)
	}
	return result, nil
}

// Stream 流式查询。事件透传，终止事件上叠加指标记录。
// 流式结果不缓存。
func (s *QueryService) Stream(ctx context.Context, input rag.QueryInput) <-chan rag.Event {
	upstream := s.pipeline.Stream(ctx, input)
	out := make(chan rag.Event, 16)

	go func() {
		defer close(out)
		for ev := range upstream {
			switch ev.Type {
			case rag.EventDone:
				s.collector.RecordRequest("query_stream", nil)
				s.collector.AddTokensStreamed(ev.TokensStreamed)
				if ev.Metadata != nil {
					s.collector.ObserveStage("embed", time.Duration(ev.Metadata.EmbedMS)*time.Millisecond)
					s.collector.ObserveStage("search", time.Duration(ev.Metadata.SearchMS)*time.Millisecond)
					s.collector.ObserveStage("generate", time.Duration(ev.Metadata.GenerateMS)*time.Millisecond)
				}
			case rag.EventError:
				s.collector.RecordRequest("query_stream", rag.ErrStreamFailed)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
