package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/telemetry"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/interfaces/http/dto"
)

// TelemetryHandler 遥测处理器
type TelemetryHandler struct {
	collector *telemetry.Collector
}

// NewTelemetryHandler 创建遥测处理器
func NewTelemetryHandler(tc *telemetry.Collector) *TelemetryHandler {
	return &TelemetryHandler{
		collector: tc,
	}
}

// bindWindow 解析查询窗口，默认 5 分钟
func bindWindow(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("window")
	if raw == "" {
		return telemetry.ExportWindow, true
	}
	window, err := time.ParseDuration(raw)
	if err != nil || window <= 0 {
		dto.BadRequest(c, "invalid window: "+raw)
		return 0, false
	}
	return window, true
}

// Metrics 查询原始指标
// @Summary 查询原始遥测指标
// @Description 查询时间窗口内的原始指标，可按名称过滤
// @Tags Telemetry
// @Produce json
// @Param window query string false "查询窗口" default(5m)
// @Param name query string false "指标名称过滤"
// @Success 200 {object} dto.Response[dto.TelemetryMetricsResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/telemetry/metrics [get]
func (h *TelemetryHandler) Metrics(c *gin.Context) {
	window, ok := bindWindow(c)
	if !ok {
		return
	}

	all := h.collector.GetMetrics(window)
	if name := c.Query("name"); name != "" {
		filtered := make([]telemetry.Metric, 0, len(all))
		for _, m := range all {
			if m.Name == name {
				filtered = append(filtered, m)
			}
		}
		all = filtered
	}

	dto.Success(c, dto.TelemetryMetricsResponse{
		Metrics: all,
		Count:   len(all),
	})
}

// Aggregate 查询聚合指标
// @Summary 查询聚合遥测指标
// @Description 按提供商聚合指定指标：sum / avg / p95 / p99
// @Tags Telemetry
// @Produce json
// @Param name query string true "指标名称"
// @Param aggregation query string false "聚合方式" default(avg)
// @Param window query string false "查询窗口" default(5m)
// @Success 200 {object} dto.Response[dto.TelemetryAggregateResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/telemetry/aggregate [get]
func (h *TelemetryHandler) Aggregate(c *gin.Context) {
	window, ok := bindWindow(c)
	if !ok {
		return
	}

	name := c.Query("name")
	if name == "" {
		dto.BadRequest(c, "name is required")
		return
	}

	agg := telemetry.Aggregation(c.DefaultQuery("aggregation", string(telemetry.AggAvg)))
	switch agg {
	case telemetry.AggSum, telemetry.AggAvg, telemetry.AggP95, telemetry.AggP99:
	default:
		dto.BadRequest(c, "invalid aggregation: "+string(agg))
		return
	}

	dto.Success(c, dto.TelemetryAggregateResponse{
		Name:        name,
		Aggregation: string(agg),
		ByProvider:  h.collector.GetAggregatedMetrics(name, agg, window),
	})
}

// Cardinality 获取维度基数报告
// @Summary 获取维度基数报告
// @Description 获取保留窗口内各受限维度的去重取值数
// @Tags Telemetry
// @Produce json
// @Success 200 {object} dto.Response[dto.TelemetryCardinalityResponse]
// @Router /v1/telemetry/cardinality [get]
func (h *TelemetryHandler) Cardinality(c *gin.Context) {
	dto.Success(c, dto.TelemetryCardinalityResponse{
		Dimensions: h.collector.GetCardinalityReport(),
	})
}

// Export 导出 CloudWatch 形态的指标
// @Summary 导出遥测指标
// @Description 导出最近窗口内 CloudWatch PutMetricData 形态的指标
// @Tags Telemetry
// @Produce json
// @Success 200 {object} dto.Response[dto.TelemetryExportResponse]
// @Router /v1/telemetry/export [get]
func (h *TelemetryHandler) Export(c *gin.Context) {
	exported := h.collector.ExportForCloudWatch()
	dto.Success(c, dto.TelemetryExportResponse{
		Metrics: exported,
		Count:   len(exported),
	})
}

// Reset 清空遥测缓冲（运维操作）
// @Summary 清空遥测缓冲
// @Tags Telemetry
// @Produce json
// @Success 204
// @Router /v1/telemetry [delete]
func (h *TelemetryHandler) Reset(c *gin.Context) {
	h.collector.Reset()
	dto.NoContent(c)
}
