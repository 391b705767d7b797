package telemetry

import (
	"time"
)

// ExportWindow CloudWatch 导出的默认尾随窗口
const ExportWindow = 5 * time.Minute

// CloudWatchDimension 外部监控系统的维度键值对
type CloudWatchDimension struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// CloudWatchMetric 外部监控系统形状的指标记录。
// 实际的 PutMetricData 调用由外部协作方负责，这里只产出数据。
type CloudWatchMetric struct {
	MetricName string                `json:"MetricName"`
	Value      float64               `json:"Value"`
	Unit       string                `json:"Unit"`
	Dimensions []CloudWatchDimension `json:"Dimensions"`
	Timestamp  time.Time             `json:"Timestamp"`
}

// cloudWatchUnit 内部单位到 CloudWatch 单位的映射
func cloudWatchUnit(u Unit) string {
	switch u {
	case UnitMs:
		return "Milliseconds"
	case UnitCount:
		return "Count"
	default:
		return "None"
	}
}

// ExportForCloudWatch 将尾随 5 分钟窗口内的指标映射为
// CloudWatch 形状的记录列表
func (c *Collector) ExportForCloudWatch() []CloudWatchMetric {
	retained := c.GetMetrics(ExportWindow)

	out := make([]CloudWatchMetric, 0, len(retained))
	for _, m := range retained {
		out = append(out, CloudWatchMetric{
			MetricName: m.Name,
			Value:      m.Value,
			Unit:       cloudWatchUnit(m.Unit),
			Dimensions: []CloudWatchDimension{
				{Name: "Provider", Value: m.Dimensions.Provider},
				{Name: "Intent", Value: m.Dimensions.Intent},
				{Name: "Role", Value: m.Dimensions.Role},
				{Name: "Region", Value: m.Dimensions.Region},
				{Name: "ToolsUsed", Value: boolString(m.Dimensions.ToolsUsed)},
				{Name: "CacheEligible", Value: boolString(m.Dimensions.CacheEligible)},
				{Name: "ModelFamily", Value: m.Dimensions.ModelFamily},
			},
			Timestamp: m.Timestamp,
		})
	}
	return out
}
