package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aihub/rag-go/internal/logger"
)

// ChatController 问答接口
type ChatController struct {
	BaseController
}

var validate = validator.New()

// ChatRequest 问答请求体
type ChatRequest struct {
	Question string `json:"question" validate:"required,min=1,max=4000"`
	K        int    `json:"k" validate:"omitempty,min=1,max=50"`
}

// Ask 处理 POST /api/chat
func (c *ChatController) Ask() {
	var req ChatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "question is required")
		return
	}

	answer, err := c.ragService().Chat(c.Ctx.Request.Context(), req.Question, req.K)
	if err != nil {
		logger.Error("chat request failed", zap.String("question", req.Question), zap.Error(err))
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(answer)
}

// ShowContext 处理 GET /api/chat/context?q=&k=
// 只返回检索到的上下文，不触发生成，便于调试检索质量
func (c *ChatController) ShowContext() {
	question := c.GetString("q")
	if question == "" {
		c.JSONError(http.StatusBadRequest, "query parameter q is required")
		return
	}
	k, _ := c.GetInt("k", 0)

	result, err := c.ragService().ShowContext(c.Ctx.Request.Context(), question, k)
	if err != nil {
		logger.Error("show context failed", zap.String("question", question), zap.Error(err))
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"question": question,
		"segments": result.Segments,
		"count":    len(result.Segments),
	})
}
