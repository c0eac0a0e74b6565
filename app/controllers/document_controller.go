package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/quilora/backend-go/internal/di"
	"github.com/quilora/backend-go/internal/logger"
	"github.com/quilora/backend-go/internal/services"
	"go.uber.org/zap"
)

// DocumentCreateRequest 文档创建请求体
type DocumentCreateRequest struct {
	Content  string                 `json:"content" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentController 文档管理接口
type DocumentController struct {
	BaseController
	documentService *services.DocumentService
}

func (c *DocumentController) Prepare() {
	if err := di.Invoke(func(s *services.DocumentService) { c.documentService = s }); err != nil {
		logger.Error("failed to resolve document service", zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Internal server error")
		c.StopRun()
	}
}

// Create POST /documents 从JSON内容创建并索引文档
func (c *DocumentController) Create() {
	var req DocumentCreateRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "Content cannot be empty")
		return
	}

	result, err := c.documentService.Create(c.Ctx.Request.Context(), req.Content, req.Metadata)
	if err != nil {
		c.HandleError(err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Upload POST /documents/upload 上传并索引文件
func (c *DocumentController) Upload() {
	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	result, err := c.documentService.Upload(c.Ctx.Request.Context(), header.Filename, data)
	if err != nil {
		c.HandleError(err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// List GET /documents 分页列出存储的分块
func (c *DocumentController) List() {
	limit, _ := c.GetInt("limit", 20)
	offset, _ := c.GetInt("offset", 0)

	result, err := c.documentService.List(c.Ctx.Request.Context(), limit, offset)
	if err != nil {
		c.HandleError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Delete DELETE /documents/:id 删除一个逻辑文档的全部分块
func (c *DocumentController) Delete() {
	documentID := c.Ctx.Input.Param(":id")

	result, err := c.documentService.Delete(c.Ctx.Request.Context(), documentID)
	if err != nil {
		c.HandleError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteAll DELETE /documents?all=true 清空整个集合
func (c *DocumentController) DeleteAll() {
	confirm, _ := c.GetBool("all", false)

	result, err := c.documentService.DeleteAll(c.Ctx.Request.Context(), confirm)
	if err != nil {
		c.HandleError(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
