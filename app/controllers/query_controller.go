package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/quilora/backend-go/internal/di"
	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/rag"
	"github.com/quilora/backend-go/internal/services"
	"go.uber.org/zap"
)

// QueryRequest 查询请求体
type QueryRequest struct {
	Query   string                 `json:"query" validate:"required"`
	TopK    int                    `json:"top_k" validate:"omitempty,gte=1,lte=100"`
	Stream  bool                   `json:"stream"`
	Filters map[string]interface{} `json:"filters"`
}

// QueryController 查询接口
type QueryController struct {
	BaseController
	queryService *services.QueryService
}

// Prepare 从DI容器解析服务。Beego每个请求新建controller实例，
// 字段必须在这里填充。
func (c *QueryController) Prepare() {
	if err := di.Invoke(func(s *services.QueryService) { c.queryService = s }); err != nil {
		logger.Error("failed to resolve query service", zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Internal server error")
		c.StopRun()
	}
}

// Query POST /query 同步或流式（SSE）问答
func (c *QueryController) Query() {
	var req QueryRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "Invalid request body")
		return
	}
	// 空白query在SSE承诺之前拒绝，流式路径同样返回400
	if err := validate.Struct(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSONError(http.StatusBadRequest, "Query cannot be empty")
		return
	}

	input := rag.QueryInput{
		Query:   req.Query,
		TopK:    req.TopK,
		Filters: req.Filters,
	}

	if req.Stream {
		c.streamQuery(input)
		return
	}

	result, err := c.queryService.Query(c.Ctx.Request.Context(), input)
	if err != nil {
		c.HandleError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// streamQuery 以SSE形式推送检索事件。响应一旦开始即是200，
// 后续失败只能以error事件表达。
func (c *QueryController) streamQuery(input rag.QueryInput) {
	w := c.Ctx.ResponseWriter
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable nginx buffering
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.ResponseWriter.(http.Flusher)
	if !ok {
		logger.Error("response writer does not support flushing")
		return
	}

	ctx := c.Ctx.Request.Context()
	for ev := range c.queryService.Stream(ctx, input) {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed to marshal stream event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// 客户端断开
			return
		}
		flusher.Flush()
	}

	// Beego不要再写JSON响应
	c.EnableRender = false
}
