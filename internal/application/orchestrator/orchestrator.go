// Package orchestrator 提供跨 AI 提供商的请求编排
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/breaker"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/telemetry"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/service"
	apperrors "github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/errors"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/logger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/metrics"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/tracer"
)

// ProviderInvoker 实际的提供商调用（port）。
// 由基础设施层提供实现，编排器不构造提供商特定的载荷。
type ProviderInvoker interface {
	Invoke(ctx context.Context, provider entity.Provider, req *entity.AiRequest) (*entity.AiResponse, error)
}

// Config 编排器配置
type Config struct {
	// DefaultProvider 未指定提供商时的默认选择
	DefaultProvider entity.Provider
	// FallbackChain 降级顺序
	FallbackChain []entity.Provider
	// Region 部署区域，作为遥测维度
	Region string
	// ModelFamilies 提供商到模型家族的映射（遥测维度）
	ModelFamilies map[entity.Provider]string
	// CostPerKTokens 按提供商的每千 token 成本（欧元），用于成本遥测
	CostPerKTokens map[entity.Provider]float64
}

// Orchestrator 单向编排：合规检查 -> 熔断保护的提供商调用 -> 遥测记录。
// 熔断拒绝与提供商失败沿降级链尝试下一个可用提供商；
// 合规违规对当前请求是致命的，不做降级重试。
type Orchestrator struct {
	breaker    *breaker.CircuitBreaker
	compliance *compliance.Integration
	telemetry  *telemetry.Collector
	invoker    ProviderInvoker
	cfg        Config
	now        func() time.Time
}

// New 创建编排器
func New(cb *breaker.CircuitBreaker, ci *compliance.Integration, tc *telemetry.Collector, invoker ProviderInvoker, cfg Config) *Orchestrator {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = entity.ProviderBedrock
	}
	if len(cfg.FallbackChain) == 0 {
		cfg.FallbackChain = entity.KnownProviders()
	}
	return &Orchestrator{
		breaker:    cb,
		compliance: ci,
		telemetry:  tc,
		invoker:    invoker,
		cfg:        cfg,
		now:        time.Now,
	}
}

// candidates 构造本次请求的提供商尝试顺序
func (o *Orchestrator) candidates(req *entity.AiRequest) []entity.Provider {
	first := o.cfg.DefaultProvider
	if req.Provider != "" {
		first = entity.ParseProvider(req.Provider)
	}

	out := []entity.Provider{first}
	seen := map[entity.Provider]bool{first: true}
	for _, p := range o.cfg.FallbackChain {
		if !seen[p] {
			out = append(out, p)
			seen[p] = true
		}
	}
	return out
}

// Generate 编排一次 AI 生成请求
func (o *Orchestrator) Generate(ctx context.Context, req *entity.AiRequest) (*entity.AiResponse, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Generate")
	defer span.End()

	if req == nil || req.Prompt == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "prompt is required")
	}

	requestID := req.ID
	if requestID == "" {
		requestID = uuid.New().String()
		req.ID = requestID
	}
	span.SetAttributes(attribute.String("ai.request_id", requestID))

	ctx = service.WithIntent(ctx, req.Intent)
	ctx = service.WithRole(ctx, req.Role)

	var fallbacks []string
	var lastErr error

	for _, provider := range o.candidates(req) {
		if !provider.IsKnown() {
			lastErr = apperrors.New(apperrors.CodeProviderNotFound,
				fmt.Sprintf("unknown provider %s", provider))
			continue
		}

		// 降级时跳过熔断中的提供商，首选提供商仍交给 Execute 判定
		// （open 且超时已过的提供商需要 Execute 触发半开探测）
		if len(fallbacks) > 0 && !o.breaker.IsAvailable(provider) {
			continue
		}

		resp, checkResult, err := o.tryProvider(ctx, req, provider, requestID)
		if err == nil {
			resp.Metadata.Fallbacks = fallbacks
			return o.compliance.WrapResponseWithCompliance(resp, checkResult), nil
		}

		// 合规违规不降级，直接失败
		if compliance.IsComplianceViolation(err) {
			return nil, err
		}

		lastErr = err
		fallbacks = append(fallbacks, provider.String())
		logger.Warn(ctx, "provider attempt failed, evaluating fallback",
			"provider", provider.String(),
			"request_id", requestID,
			"circuit_open", breaker.IsCircuitOpen(err),
		)
	}

	if lastErr == nil {
		lastErr = apperrors.ErrAllProvidersFailed
	}
	return nil, apperrors.Wrap(lastErr, apperrors.CodeAllProvidersFailed,
		"all providers failed or unavailable")
}

// tryProvider 对单个提供商执行 合规 -> 熔断调用 -> 遥测 流程
func (o *Orchestrator) tryProvider(ctx context.Context, req *entity.AiRequest, provider entity.Provider, requestID string) (*entity.AiResponse, compliance.CheckResult, error) {
	ctx = service.WithProvider(ctx, provider.String())

	checkResult, err := o.compliance.EnforceCompliance(ctx, req, provider, requestID)
	if err != nil {
		return nil, checkResult, err
	}

	region := req.Region
	if region == "" {
		region = o.cfg.Region
	}
	modelFamily := o.cfg.ModelFamilies[provider]

	start := o.now()
	out, err := o.breaker.Execute(ctx, provider, func(ctx context.Context) (any, error) {
		return o.invoker.Invoke(ctx, provider, req)
	})
	latency := o.now().Sub(start)

	if err != nil {
		if breaker.IsCircuitOpen(err) {
			metrics.ProviderCallTotal.WithLabelValues(provider.String(), "rejected").Inc()
			o.telemetry.RecordError(ctx, provider, "circuit_open", telemetry.ErrorContext{
				Intent: req.Intent, Role: req.Role, Region: region, ModelFamily: modelFamily,
			})
		} else {
			metrics.ProviderCallTotal.WithLabelValues(provider.String(), "failure").Inc()
			o.telemetry.RecordError(ctx, provider, "provider_error", telemetry.ErrorContext{
				Intent: req.Intent, Role: req.Role, Region: region, ModelFamily: modelFamily,
			})
		}
		return nil, checkResult, err
	}

	resp, ok := out.(*entity.AiResponse)
	if !ok || resp == nil {
		return nil, checkResult, apperrors.New(apperrors.CodeProviderError,
			fmt.Sprintf("provider %s returned unexpected result", provider))
	}

	metrics.ProviderCallTotal.WithLabelValues(provider.String(), "success").Inc()

	resp.RequestID = requestID
	resp.Metadata.Provider = provider
	resp.Metadata.LatencyMs = latency.Milliseconds()

	o.recordTelemetry(ctx, provider, req, resp, region, modelFamily, latency)
	return resp, checkResult, nil
}

// recordTelemetry 记录延迟/成本/缓存遥测，best-effort
func (o *Orchestrator) recordTelemetry(ctx context.Context, provider entity.Provider, req *entity.AiRequest, resp *entity.AiResponse, region, modelFamily string, latency time.Duration) {
	lctx := telemetry.LatencyContext{
		Intent:        req.Intent,
		Role:          req.Role,
		Region:        region,
		ModelFamily:   modelFamily,
		CacheEligible: req.Intent == "rag_cached",
		Tokens:        resp.Metadata.Usage,
	}
	o.telemetry.RecordLatency(ctx, provider, float64(latency.Milliseconds()), lctx)

	if usage := resp.Metadata.Usage; usage != nil {
		metrics.ProviderTokensUsed.WithLabelValues(provider.String(), "prompt").Add(float64(usage.PromptTokens))
		metrics.ProviderTokensUsed.WithLabelValues(provider.String(), "completion").Add(float64(usage.OutputTokens))

		if rate, ok := o.cfg.CostPerKTokens[provider]; ok && rate > 0 {
			cost := rate * float64(usage.TotalTokens) / 1000
			o.telemetry.RecordCost(ctx, provider, cost, telemetry.CostContext{
				Intent: req.Intent, Role: req.Role, Region: region, ModelFamily: modelFamily,
			})
		}
	}

	if req.Intent == "rag_cached" {
		o.telemetry.RecordCacheHit(ctx, provider, resp.Metadata.CacheHit, telemetry.CacheContext{
			Intent: req.Intent, Role: req.Role, Region: region, ModelFamily: modelFamily,
		})
	}
}

// AvailableProviders 当前可调用的提供商（降级选择用）
func (o *Orchestrator) AvailableProviders() []entity.Provider {
	return o.breaker.AvailableProviders()
}
