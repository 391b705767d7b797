package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/breaker"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/interfaces/http/dto"
)

// ProviderHandler 提供商状态处理器
type ProviderHandler struct {
	breaker *breaker.CircuitBreaker
}

// NewProviderHandler 创建提供商状态处理器
func NewProviderHandler(cb *breaker.CircuitBreaker) *ProviderHandler {
	return &ProviderHandler{
		breaker: cb,
	}
}

// bindProvider 解析路径中的提供商参数
func bindProvider(c *gin.Context) (entity.Provider, bool) {
	provider := entity.ParseProvider(c.Param("provider"))
	if !provider.IsKnown() {
		dto.NotFound(c, "unknown provider: "+c.Param("provider"))
		return provider, false
	}
	return provider, true
}

// ListProviders 获取全部提供商状态
// @Summary 获取提供商状态列表
// @Description 获取各提供商的熔断状态与调用指标
// @Tags Providers
// @Produce json
// @Success 200 {object} dto.Response[dto.ProviderListResponse]
// @Router /v1/providers [get]
func (h *ProviderHandler) ListProviders(c *gin.Context) {
	providers := entity.KnownProviders()
	statuses := make([]dto.ProviderStatus, 0, len(providers))
	for _, p := range providers {
		statuses = append(statuses, dto.ToProviderStatus(h.breaker.Metrics(p), h.breaker.IsAvailable(p)))
	}
	dto.Success(c, dto.ProviderListResponse{Providers: statuses})
}

// GetProvider 获取单个提供商状态
// @Summary 获取提供商状态
// @Tags Providers
// @Produce json
// @Param provider path string true "提供商"
// @Success 200 {object} dto.Response[dto.ProviderStatus]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/providers/{provider} [get]
func (h *ProviderHandler) GetProvider(c *gin.Context) {
	provider, ok := bindProvider(c)
	if !ok {
		return
	}
	dto.Success(c, dto.ToProviderStatus(h.breaker.Metrics(provider), h.breaker.IsAvailable(provider)))
}

// ForceOpen 强制打开熔断器（运维操作）
// @Summary 强制打开熔断器
// @Tags Providers
// @Produce json
// @Param provider path string true "提供商"
// @Success 200 {object} dto.Response[dto.ProviderStatus]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/providers/{provider}/circuit/open [post]
func (h *ProviderHandler) ForceOpen(c *gin.Context) {
	provider, ok := bindProvider(c)
	if !ok {
		return
	}
	h.breaker.ForceOpen(provider)
	dto.Success(c, dto.ToProviderStatus(h.breaker.Metrics(provider), h.breaker.IsAvailable(provider)))
}

// ForceClose 强制关闭熔断器（运维操作）
// @Summary 强制关闭熔断器
// @Tags Providers
// @Produce json
// @Param provider path string true "提供商"
// @Success 200 {object} dto.Response[dto.ProviderStatus]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/providers/{provider}/circuit/close [post]
func (h *ProviderHandler) ForceClose(c *gin.Context) {
	provider, ok := bindProvider(c)
	if !ok {
		return
	}
	h.breaker.ForceClose(provider)
	dto.Success(c, dto.ToProviderStatus(h.breaker.Metrics(provider), h.breaker.IsAvailable(provider)))
}

// ResetCircuit 重置熔断统计（运维操作）
// @Summary 重置熔断统计
// @Tags Providers
// @Produce json
// @Param provider path string true "提供商"
// @Success 200 {object} dto.Response[dto.ProviderStatus]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/providers/{provider}/circuit/reset [post]
func (h *ProviderHandler) ResetCircuit(c *gin.Context) {
	provider, ok := bindProvider(c)
	if !ok {
		return
	}
	h.breaker.Reset(provider)
	dto.Success(c, dto.ToProviderStatus(h.breaker.Metrics(provider), h.breaker.IsAvailable(provider)))
}
