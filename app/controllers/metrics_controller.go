package controllers

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/quilora/backend-go/internal/di"
	"github.com/quilora/backend-go/internal/metrics"
)

// MetricsController 指标控制器
type MetricsController struct {
	web.Controller
	collector *metrics.Collector
}

func (c *MetricsController) Prepare() {
	if err := di.Invoke(func(collector *metrics.Collector) { c.collector = collector }); err != nil {
		c.Ctx.Output.SetStatus(500)
		c.StopRun()
	}
}

// Metrics GET /metrics 返回Prometheus格式的指标
func (c *MetricsController) Metrics() {
	c.collector.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
	c.EnableRender = false
}
