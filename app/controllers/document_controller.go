package controllers

import (
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/aihub/rag-go/internal/config"
	"github.com/aihub/rag-go/internal/logger"
)

// DocumentController 文档上传与摄取接口
type DocumentController struct {
	BaseController
}

// Upload 处理 POST /api/documents/upload
// 接收multipart文件，校验大小与类型后直接进入摄取流水线
func (c *DocumentController) Upload() {
	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	cfg := config.GetAppConfig()
	if header.Size > cfg.Upload.MaxSize {
		c.JSONError(http.StatusRequestEntityTooLarge, "file exceeds maximum upload size")
		return
	}
	if !allowedType(header.Filename, cfg.Upload.AllowedTypes) {
		c.JSONError(http.StatusBadRequest, "unsupported file type")
		return
	}

	report, err := c.ragService().IngestFile(c.Ctx.Request.Context(), file, header.Filename)
	if err != nil {
		logger.Error("document ingestion failed",
			zap.String("filename", header.Filename), zap.Error(err))
		c.JSONAppError(err)
		return
	}

	logger.Info("document uploaded and ingested",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))
	c.JSONSuccess(map[string]interface{}{
		"filename":         header.Filename,
		"processed_pages":  report.ProcessedPages,
		"parents_added":    report.ParentsAdded,
		"children_indexed": report.ChildrenIndexed,
	})
}

// Reset 处理 POST /api/documents/reset，清空全部已摄取内容
func (c *DocumentController) Reset() {
	if err := c.ragService().Reset(c.Ctx.Request.Context()); err != nil {
		logger.Error("reset failed", zap.Error(err))
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"reset": true})
}

// Formats 处理 GET /api/documents/formats
func (c *DocumentController) Formats() {
	c.JSONSuccess(map[string]interface{}{
		"supported_formats": c.ragService().SupportedFormats(),
	})
}

func allowedType(filename string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, t := range allowed {
		if ext == strings.ToLower(t) {
			return true
		}
	}
	return false
}
