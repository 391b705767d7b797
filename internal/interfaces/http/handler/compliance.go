package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/interfaces/http/dto"
)

// ComplianceHandler 合规处理器
type ComplianceHandler struct {
	compliance *compliance.Integration
}

// NewComplianceHandler 创建合规处理器
func NewComplianceHandler(ci *compliance.Integration) *ComplianceHandler {
	return &ComplianceHandler{
		compliance: ci,
	}
}

// Summary 获取合规汇总
// @Summary 获取合规汇总
// @Description 获取全部提供商的合规状态汇总
// @Tags Compliance
// @Produce json
// @Success 200 {object} dto.Response[dto.ComplianceSummaryResponse]
// @Router /v1/compliance/summary [get]
func (h *ComplianceHandler) Summary(c *gin.Context) {
	summary := h.compliance.GetComplianceSummary(c.Request.Context())
	dto.Success(c, dto.ToComplianceSummaryResponse(summary))
}

// GetConfig 获取合规配置
// @Summary 获取合规配置
// @Tags Compliance
// @Produce json
// @Success 200 {object} dto.Response[dto.ComplianceConfigResponse]
// @Router /v1/compliance/config [get]
func (h *ComplianceHandler) GetConfig(c *gin.Context) {
	dto.Success(c, dto.ToComplianceConfigResponse(h.compliance.GetConfig()))
}

// UpdateConfig 运行时调整合规配置
// @Summary 调整合规配置
// @Description 运行时调整合规门控的可变配置项
// @Tags Compliance
// @Accept json
// @Produce json
// @Param body body dto.UpdateComplianceConfigRequest true "配置调整"
// @Success 200 {object} dto.Response[dto.ComplianceConfigResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/compliance/config [put]
func (h *ComplianceHandler) UpdateConfig(c *gin.Context) {
	var req dto.UpdateComplianceConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	h.compliance.UpdateConfig(req.ToConfigUpdate())
	dto.Success(c, dto.ToComplianceConfigResponse(h.compliance.GetConfig()))
}
