package controllers

import (
	"net/http"

	"github.com/quilora/backend-go/internal/di"
	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/services"
	"go.uber.org/zap"
)

// HealthController 健康检查接口
type HealthController struct {
	BaseController
	healthService *services.HealthService
}

func (c *HealthController) Prepare() {
	if err := di.Invoke(func(s *services.HealthService) { c.healthService = s }); err != nil {
		logger.Error("failed to resolve health service", zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Internal server error")
		c.StopRun()
	}
}

// Health GET /health 返回服务与依赖的健康状态
func (c *HealthController) Health() {
	status, healthy := c.healthService.Check(c.Ctx.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// RootController 根路径接口
type RootController struct {
	BaseController
}

// Index GET / 服务信息
func (c *RootController) Index() {
	c.JSON(http.StatusOK, map[string]interface{}{
		"service": "quilora-rag",
		"version": "0.3.0",
		"docs":    "/health",
	})
}
