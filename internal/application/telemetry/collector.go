// Package telemetry 提供受限基数的运行指标采集
package telemetry

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/logger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/metrics"
)

// Unit 指标单位
type Unit string

const (
	UnitMs    Unit = "ms"
	UnitEuro  Unit = "euro"
	UnitCount Unit = "count"
)

// 指标名称
const (
	MetricLatency      = "ai.latency"
	MetricTokensPrompt = "ai.tokens.prompt"
	MetricTokensOutput = "ai.tokens.output"
	MetricTokensTotal  = "ai.tokens.total"
	MetricCost         = "ai.cost"
	MetricCacheHit     = "ai.cache_hit"
	MetricErrors       = "ai.errors"
)

// DefaultMaxMetrics 默认的指标保留上限
const DefaultMaxMetrics = 10000

// Metric 单条遥测指标
type Metric struct {
	Name       string     `json:"name"`
	Value      float64    `json:"value"`
	Dimensions Dimensions `json:"dimensions"`
	Timestamp  time.Time  `json:"timestamp"`
	Unit       Unit       `json:"unit"`
}

// LatencyContext 延迟记录的上下文
type LatencyContext struct {
	Intent        string
	Role          string
	Region        string
	ModelFamily   string
	ToolsUsed     bool
	CacheEligible bool
	// Tokens 可选的 Token 用量，提供时追加 token 指标
	Tokens *entity.TokenUsage
}

// CostContext 成本记录的上下文
type CostContext struct {
	Intent      string
	Role        string
	Region      string
	ModelFamily string
}

// CacheContext 缓存命中记录的上下文
type CacheContext struct {
	Intent      string
	Role        string
	Region      string
	ModelFamily string
}

// ErrorContext 错误记录的上下文
type ErrorContext struct {
	Intent      string
	Role        string
	Region      string
	ModelFamily string
}

// Aggregation 聚合方式
type Aggregation string

const (
	AggSum Aggregation = "sum"
	AggAvg Aggregation = "avg"
	AggP95 Aggregation = "p95"
	AggP99 Aggregation = "p99"
)

// Collector 受限基数的遥测采集器。
// 指标存放在固定容量的环形缓冲中，超出容量按插入顺序淘汰最旧项。
// 写入是 best-effort：内部故障只丢弃该条指标，绝不影响调用方主流程。
type Collector struct {
	mu    sync.Mutex
	buf   []Metric
	start int
	count int

	now func() time.Time
}

// NewCollector 创建采集器，maxMetrics <= 0 时使用默认上限
func NewCollector(maxMetrics int) *Collector {
	if maxMetrics <= 0 {
		maxMetrics = DefaultMaxMetrics
	}
	return &Collector{
		buf: make([]Metric, maxMetrics),
		now: time.Now,
	}
}

// append 写入一条指标，容量满时淘汰最旧项（调用方需持有锁）
func (c *Collector) append(m Metric) {
	if c.count < len(c.buf) {
		c.buf[(c.start+c.count)%len(c.buf)] = m
		c.count++
	} else {
		// FIFO 淘汰
		c.buf[c.start] = m
		c.start = (c.start + 1) % len(c.buf)
		metrics.TelemetryDroppedTotal.Inc()
	}
	metrics.TelemetryRetained.Set(float64(c.count))
}

// record 清洗维度并写入，内部故障降级为丢弃
func (c *Collector) record(ctx context.Context, name string, value float64, unit Unit, dims Dimensions) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TelemetryDroppedTotal.Inc()
			logger.Warn(ctx, "telemetry write degraded, metric dropped",
				"metric", name, "reason", r)
		}
	}()

	if math.IsNaN(value) || math.IsInf(value, 0) {
		metrics.TelemetryDroppedTotal.Inc()
		return
	}

	m := Metric{
		Name:       name,
		Value:      value,
		Dimensions: sanitize(dims),
		Timestamp:  c.now(),
		Unit:       unit,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.append(m)
}

// RecordLatency 记录一次调用延迟，附带可选的 token 指标
func (c *Collector) RecordLatency(ctx context.Context, provider entity.Provider, latencyMs float64, lctx LatencyContext) {
	dims := Dimensions{
		Provider:      provider.String(),
		Intent:        lctx.Intent,
		Role:          lctx.Role,
		Region:        lctx.Region,
		ToolsUsed:     lctx.ToolsUsed,
		CacheEligible: lctx.CacheEligible,
		ModelFamily:   lctx.ModelFamily,
	}
	c.record(ctx, MetricLatency, latencyMs, UnitMs, dims)

	if lctx.Tokens != nil {
		c.record(ctx, MetricTokensPrompt, float64(lctx.Tokens.PromptTokens), UnitCount, dims)
		c.record(ctx, MetricTokensOutput, float64(lctx.Tokens.OutputTokens), UnitCount, dims)
		c.record(ctx, MetricTokensTotal, float64(lctx.Tokens.TotalTokens), UnitCount, dims)
	}
}

// RecordCost 记录一次调用成本（欧元）。
// 成本指标不携带 tools/cache 维度，统一置为中性值。
func (c *Collector) RecordCost(ctx context.Context, provider entity.Provider, cost float64, cctx CostContext) {
	c.record(ctx, MetricCost, cost, UnitEuro, Dimensions{
		Provider:    provider.String(),
		Intent:      cctx.Intent,
		Role:        cctx.Role,
		Region:      cctx.Region,
		ModelFamily: cctx.ModelFamily,
	})
}

// RecordCacheHit 记录缓存命中（1）或未命中（0）
func (c *Collector) RecordCacheHit(ctx context.Context, provider entity.Provider, hit bool, cctx CacheContext) {
	value := 0.0
	if hit {
		value = 1.0
	}
	c.record(ctx, MetricCacheHit, value, UnitCount, Dimensions{
		Provider:      provider.String(),
		Intent:        cctx.Intent,
		Role:          cctx.Role,
		Region:        cctx.Region,
		CacheEligible: true,
		ModelFamily:   cctx.ModelFamily,
	})
}

// RecordError 记录一次错误。
// errorType 只做日志与聚合计数，绝不作为维度存储，避免基数爆炸。
func (c *Collector) RecordError(ctx context.Context, provider entity.Provider, errorType string, ectx ErrorContext) {
	logger.Debug(ctx, "telemetry error recorded",
		"provider", provider.String(), "error_type", errorType)
	c.record(ctx, MetricErrors, 1, UnitCount, Dimensions{
		Provider:    provider.String(),
		Intent:      ectx.Intent,
		Role:        ectx.Role,
		Region:      ectx.Region,
		ModelFamily: ectx.ModelFamily,
	})
}

// snapshot 按插入顺序复制当前保留的指标（调用方需持有锁）
func (c *Collector) snapshot() []Metric {
	out := make([]Metric, 0, c.count)
	for i := 0; i < c.count; i++ {
		out = append(out, c.buf[(c.start+i)%len(c.buf)])
	}
	return out
}

// GetMetrics 返回时间戳落在尾随窗口内的全部指标
func (c *Collector) GetMetrics(window time.Duration) []Metric {
	c.mu.Lock()
	all := c.snapshot()
	c.mu.Unlock()

	cutoff := c.now().Add(-window)
	out := make([]Metric, 0, len(all))
	for _, m := range all {
		if m.Timestamp.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// GetMetricsByDimension 按单个维度键分组指定名称的指标
func (c *Collector) GetMetricsByDimension(name, dimension string, window time.Duration) map[string][]Metric {
	out := make(map[string][]Metric)
	for _, m := range c.GetMetrics(window) {
		if m.Name != name {
			continue
		}
		key, ok := dimensionValue(m.Dimensions, dimension)
		if !ok {
			continue
		}
		out[key] = append(out[key], m)
	}
	return out
}

// GetAggregatedMetrics 按提供商聚合指定名称的指标
func (c *Collector) GetAggregatedMetrics(name string, agg Aggregation, window time.Duration) map[string]float64 {
	values := make(map[string][]float64)
	for _, m := range c.GetMetrics(window) {
		if m.Name != name {
			continue
		}
		values[m.Dimensions.Provider] = append(values[m.Dimensions.Provider], m.Value)
	}

	out := make(map[string]float64, len(values))
	for provider, vs := range values {
		out[provider] = aggregate(vs, agg)
	}
	return out
}

// aggregate 计算单组取值的聚合结果
func aggregate(vs []float64, agg Aggregation) float64 {
	if len(vs) == 0 {
		return 0
	}
	switch agg {
	case AggSum:
		return sum(vs)
	case AggAvg:
		return sum(vs) / float64(len(vs))
	case AggP95:
		return percentile(vs, 0.95)
	case AggP99:
		return percentile(vs, 0.99)
	default:
		return sum(vs)
	}
}

func sum(vs []float64) float64 {
	var total float64
	for _, v := range vs {
		total += v
	}
	return total
}

// percentile 排序后取 floor(n*p) 下标，越界收敛到末位
func percentile(vs []float64, p float64) float64 {
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// GetCardinalityReport 统计保留窗口内各受限维度的去重取值数，
// 用于自检基数上限是否守住。
func (c *Collector) GetCardinalityReport() map[string]int {
	c.mu.Lock()
	all := c.snapshot()
	c.mu.Unlock()

	distinct := map[string]map[string]struct{}{
		"provider":     {},
		"intent":       {},
		"role":         {},
		"region":       {},
		"model_family": {},
	}
	for _, m := range all {
		for key := range distinct {
			if v, ok := dimensionValue(m.Dimensions, key); ok {
				distinct[key][v] = struct{}{}
			}
		}
	}

	out := make(map[string]int, len(distinct))
	for key, set := range distinct {
		out[key] = len(set)
	}
	return out
}

// Reset 清空全部保留指标
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = 0
	c.count = 0
	metrics.TelemetryRetained.Set(0)
}
