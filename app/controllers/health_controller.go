package controllers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/aihub/rag-go/internal/logger"
)

// RootController 服务自述
type RootController struct {
	BaseController
}

// Index 处理 GET /
func (c *RootController) Index() {
	c.JSON(http.StatusOK, map[string]interface{}{
		"service": "rag-go",
		"message": "document question answering service",
	})
}

// HealthController 健康检查与统计接口
type HealthController struct {
	BaseController
}

// Health 处理 GET /health
func (c *HealthController) Health() {
	svc := c.ragService()
	stats, err := svc.Stats(c.Ctx.Request.Context())
	if err != nil {
		logger.Error("health check failed", zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "failed to collect stats")
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"parent_count": stats.ParentCount,
		"vector_count": stats.VectorCount,
		"components":   svc.Ready(),
	})
}

// Stats 处理 GET /api/stats
func (c *HealthController) Stats() {
	stats, err := c.ragService().Stats(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(stats)
}
