package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector RAG流水线指标收集器
type Collector struct {
	requestsCounter *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	tokensStreamed  prometheus.Counter
	documentsStored prometheus.Gauge
}

// NewCollector 创建并注册指标收集器
func NewCollector() *Collector {
	return &Collector{
		requestsCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_requests_total",
				Help: "Total number of RAG requests by operation and status",
			},
			[]string{"operation", "status"}, // operation: query, query_stream, index, delete, list
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_stage_duration_seconds",
				Help:    "Duration of RAG pipeline stages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"}, // stage: embed, search, generate, chunk, write
		),
		tokensStreamed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_tokens_streamed_total",
				Help: "Total number of tokens emitted on streaming responses",
			},
		),
		documentsStored: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rag_documents_stored",
				Help: "Number of chunks currently stored in the vector collection",
			},
		),
	}
}

// RecordRequest 记录一次请求的结果
func (c *Collector) RecordRequest(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.requestsCounter.WithLabelValues(operation, status).Inc()
}

// ObserveStage 记录单个流水线阶段耗时
func (c *Collector) ObserveStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// AddTokensStreamed 累计流式输出的token数
func (c *Collector) AddTokensStreamed(n int) {
	if n > 0 {
		c.tokensStreamed.Add(float64(n))
	}
}

// SetDocumentsStored 更新集合内的分块总数
func (c *Collector) SetDocumentsStored(count int64) {
	c.documentsStored.Set(float64(count))
}

// Handler 返回Prometheus指标的HTTP处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
