// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/orchestrator"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/interfaces/http/dto"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/errors"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/logger"
)

// AiHandler AI 生成处理器
type AiHandler struct {
	orchestrator *orchestrator.Orchestrator
}

// NewAiHandler 创建 AI 生成处理器
func NewAiHandler(o *orchestrator.Orchestrator) *AiHandler {
	return &AiHandler{
		orchestrator: o,
	}
}

// Generate 生成 AI 内容
// @Summary 生成 AI 内容
// @Description 经合规与熔断门控后调用 AI 提供商生成内容
// @Tags AI
// @Accept json
// @Produce json
// @Param body body dto.GenerateRequest true "生成请求"
// @Success 200 {object} dto.Response[dto.GenerateResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/ai/generate [post]
func (h *AiHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	aiReq := req.ToAiRequest()
	aiReq.ID = c.GetString("request_id")

	resp, err := h.orchestrator.Generate(ctx, aiReq)
	if err != nil {
		if errors.IsAppError(err) {
			dto.AppError(c, err)
			return
		}
		logger.Error(ctx, "failed to generate", err)
		dto.InternalError(c, "failed to generate")
		return
	}

	dto.Success(c, dto.ToGenerateResponse(resp))
}
