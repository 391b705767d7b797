package dto

import (
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/telemetry"
)

// TelemetryQuery 遥测查询参数
type TelemetryQuery struct {
	// Window 查询窗口，如 "5m"、"1h"
	Window string `form:"window"`
	// Name 指标名称过滤
	Name string `form:"name"`
	// Dimension 按维度分组时的维度键
	Dimension string `form:"dimension"`
	// Aggregation 聚合方式：sum / avg / p95 / p99
	Aggregation string `form:"aggregation"`
}

// TelemetryMetricsResponse 原始指标响应
type TelemetryMetricsResponse struct {
	Metrics []telemetry.Metric `json:"metrics"`
	Count   int                `json:"count"`
}

// TelemetryAggregateResponse 聚合指标响应
type TelemetryAggregateResponse struct {
	Name        string             `json:"name"`
	Aggregation string             `json:"aggregation"`
	ByProvider  map[string]float64 `json:"by_provider"`
}

// TelemetryCardinalityResponse 维度基数报告响应
type TelemetryCardinalityResponse struct {
	Dimensions map[string]int `json:"dimensions"`
}

// TelemetryExportResponse CloudWatch 形态的导出响应
type TelemetryExportResponse struct {
	Metrics []telemetry.CloudWatchMetric `json:"metrics"`
	Count   int                          `json:"count"`
}
