// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// AI 生成
	ai := v1.Group("/ai")
	{
		ai.POST("/generate", h.Ai.Generate)
	}

	// 提供商状态与熔断运维
	providers := v1.Group("/providers")
	{
		providers.GET("", h.Provider.ListProviders)
		providers.GET("/:provider", h.Provider.GetProvider)
		providers.POST("/:provider/circuit/open", h.Provider.ForceOpen)
		providers.POST("/:provider/circuit/close", h.Provider.ForceClose)
		providers.POST("/:provider/circuit/reset", h.Provider.ResetCircuit)
	}

	// 合规
	compliance := v1.Group("/compliance")
	{
		compliance.GET("/summary", h.Compliance.Summary)
		compliance.GET("/config", h.Compliance.GetConfig)
		compliance.PUT("/config", h.Compliance.UpdateConfig)
	}

	// 遥测
	telemetry := v1.Group("/telemetry")
	{
		telemetry.GET("/metrics", h.Telemetry.Metrics)
		telemetry.GET("/aggregate", h.Telemetry.Aggregate)
		telemetry.GET("/cardinality", h.Telemetry.Cardinality)
		telemetry.GET("/export", h.Telemetry.Export)
		telemetry.DELETE("", h.Telemetry.Reset)
	}
}
