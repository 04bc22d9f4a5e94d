package controllers

import (
	"errors"
	"net/http"

	"github.com/beego/beego/v2/server/web"

	"github.com/aihub/rag-go/app/bootstrap"
	"github.com/aihub/rag-go/internal/apperrors"
	"github.com/aihub/rag-go/internal/services"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 按错误码映射HTTP状态并输出错误信息
func (c *BaseController) JSONAppError(err error) {
	status := apperrors.HTTPStatus(err)
	var appErr *apperrors.AppError
	errors.As(err, &appErr)
	payload := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	if appErr != nil {
		payload["code"] = appErr.Code
	}
	c.JSON(status, payload)
}

// ragService 获取注入的RAG服务
func (c *BaseController) ragService() *services.RAGService {
	return bootstrap.GetApp().GetRAGService()
}
