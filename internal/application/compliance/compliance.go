// Package compliance 提供提供商使用协议的合规门控
package compliance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/repository"
	apperrors "github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/errors"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/logger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/metrics"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/tracer"
)

// 近期违规的统计窗口
const violationWindow = 24 * time.Hour

// Integration 在请求进入熔断器/提供商之前执行协议合规检查。
// 协议数据通过 AgreementRepository 只读获取，检查失败一律 fail-closed。
type Integration struct {
	repo repository.AgreementRepository

	mu         sync.RWMutex
	cfg        Config
	violations []time.Time

	now func() time.Time
}

// New 创建合规门控
func New(repo repository.AgreementRepository, cfg Config) *Integration {
	return &Integration{
		repo: repo,
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}
}

// PerformComplianceCheck 对指定提供商执行合规检查。
// 任何输入（包括未知提供商）都返回结构化结果，绝不 panic；
// 内部查找失败同样产生 allowed=false 的结果（fail-closed）。
func (i *Integration) PerformComplianceCheck(ctx context.Context, req *entity.AiRequest, provider entity.Provider, requestID string) CheckResult {
	ctx, span := tracer.Start(ctx, "compliance.PerformComplianceCheck")
	defer span.End()

	result := CheckResult{
		Provider:   provider,
		Violations: []string{},
		Warnings:   []string{},
	}

	if !provider.IsKnown() {
		result.AgreementStatus = entity.AgreementStatusMissing
		result.Violations = append(result.Violations,
			fmt.Sprintf("No agreement found for provider %s", provider))
		i.recordOutcome(provider, result)
		return result
	}

	agreement, err := i.repo.GetByProvider(ctx, provider)
	if err != nil {
		span.RecordError(err)
		logger.Error(ctx, "agreement lookup failed", err,
			"provider", provider.String(), "request_id", requestID)
		result.AgreementStatus = entity.AgreementStatusMissing
		result.Violations = append(result.Violations,
			fmt.Sprintf("Agreement lookup failed for provider %s: %v", provider, err))
		i.recordOutcome(provider, result)
		return result
	}

	if agreement == nil {
		result.AgreementStatus = entity.AgreementStatusMissing
		result.Violations = append(result.Violations,
			fmt.Sprintf("No agreement found for provider %s", provider))
		i.recordOutcome(provider, result)
		return result
	}

	now := i.now()
	if agreement.IsExpired(now) {
		result.AgreementStatus = entity.AgreementStatusExpired
		result.Violations = append(result.Violations,
			fmt.Sprintf("Agreement for provider %s expired at %s",
				provider, agreement.ExpiresAt.Format(time.RFC3339)))
		i.recordOutcome(provider, result)
		return result
	}

	i.mu.RLock()
	warnDays := i.cfg.WarningThresholdDays
	warnFloor, okScore := i.thresholdsLocked(provider)
	i.mu.RUnlock()

	validScore := scoreFromThreshold(okScore)
	daysLeft := agreement.DaysUntilExpiry(now)

	result.Allowed = true
	if daysLeft <= warnDays {
		// 进入告警窗口：按剩余天数比例降分
		result.AgreementStatus = entity.AgreementStatusExpiring
		result.ComplianceScore = warnFloor + (validScore-warnFloor)*daysLeft/warnDays
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Agreement for provider %s expires in %d days", provider, daysLeft))
	} else {
		result.AgreementStatus = entity.AgreementStatusActive
		result.ComplianceScore = validScore
	}

	i.recordOutcome(provider, result)
	return result
}

// thresholdsLocked 取提供商阈值（调用方需持有读锁）。
// 返回 0-100 的告警下限分与 0-1 的达标阈值。
func (i *Integration) thresholdsLocked(provider entity.Provider) (int, float64) {
	warn := i.cfg.WarnScore
	ok := i.cfg.OKScore
	if t, found := i.cfg.ProviderScores[provider]; found {
		if t.WarnScore > 0 {
			warn = t.WarnScore
		}
		if t.OKScore > 0 {
			ok = t.OKScore
		}
	}
	return int(warn * 100), ok
}

// scoreFromThreshold 由达标阈值推出有效协议的分数，保证 > 70
func scoreFromThreshold(ok float64) int {
	score := int(ok*100) + 20
	if score > 100 {
		score = 100
	}
	if score <= 70 {
		score = 71
	}
	return score
}

// recordOutcome 记录检查结果指标与近期违规
func (i *Integration) recordOutcome(provider entity.Provider, result CheckResult) {
	outcome := "allowed"
	if !result.Allowed {
		outcome = "blocked"
	}
	metrics.ComplianceChecksTotal.WithLabelValues(provider.String(), outcome).Inc()

	if len(result.Violations) == 0 {
		return
	}
	metrics.ComplianceViolationsTotal.WithLabelValues(provider.String()).Inc()

	i.mu.Lock()
	defer i.mu.Unlock()
	cutoff := i.now().Add(-violationWindow)
	kept := i.violations[:0]
	for _, ts := range i.violations {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	i.violations = append(kept, i.now())
}

// EnforceCompliance 执行合规检查并按配置决定是否阻断。
// enforce 开启且不合规时返回携带违规列表、消息含 "Compliance violation"
// 的错误；关闭时仅记录日志放行。
func (i *Integration) EnforceCompliance(ctx context.Context, req *entity.AiRequest, provider entity.Provider, requestID string) (CheckResult, error) {
	result := i.PerformComplianceCheck(ctx, req, provider, requestID)
	if result.Allowed {
		return result, nil
	}

	i.mu.RLock()
	enforce := i.cfg.EnforceCompliance
	i.mu.RUnlock()

	if !enforce {
		logger.Warn(ctx, "compliance violations detected but enforcement disabled",
			"provider", provider.String(),
			"request_id", requestID,
			"violations", strings.Join(result.Violations, "; "),
		)
		return result, nil
	}

	return result, apperrors.New(apperrors.CodeComplianceViolation,
		fmt.Sprintf("Compliance violation for provider %s: %s",
			provider, strings.Join(result.Violations, "; ")))
}

// WrapResponseWithCompliance 将合规元数据附加到响应，不改动主体内容
func (i *Integration) WrapResponseWithCompliance(resp *entity.AiResponse, result CheckResult) *entity.AiResponse {
	if resp == nil {
		return nil
	}
	resp.Metadata.Compliance = &entity.ComplianceMetadata{
		Checked:         true,
		Score:           result.ComplianceScore,
		AgreementStatus: result.AgreementStatus,
	}
	return resp
}

// GetComplianceSummary 汇总全部已知提供商的当前合规状态
func (i *Integration) GetComplianceSummary(ctx context.Context) Summary {
	ctx, span := tracer.Start(ctx, "compliance.GetComplianceSummary")
	defer span.End()

	i.mu.RLock()
	blockOnViolations := i.cfg.BlockOnViolations
	i.mu.RUnlock()

	summary := Summary{
		OverallCompliance: OverallCompliant,
		GeneratedAt:       i.now(),
	}

	for _, p := range entity.KnownProviders() {
		result := i.PerformComplianceCheck(ctx, nil, p, "")
		ps := ProviderSummary{
			Provider:        p,
			Compliant:       result.Allowed && len(result.Warnings) == 0,
			Score:           result.ComplianceScore,
			AgreementStatus: result.AgreementStatus,
		}
		summary.Providers = append(summary.Providers, ps)

		switch {
		case !result.Allowed:
			summary.OverallCompliance = OverallNonCompliant
			if blockOnViolations {
				summary.PendingActions++
			}
		case len(result.Warnings) > 0 && summary.OverallCompliance == OverallCompliant:
			summary.OverallCompliance = OverallWarning
		}
	}

	i.mu.RLock()
	cutoff := i.now().Add(-violationWindow)
	for _, ts := range i.violations {
		if ts.After(cutoff) {
			summary.RecentViolations++
		}
	}
	i.mu.RUnlock()

	return summary
}

// UpdateConfig 运行时调整配置，nil 字段保持原值
func (i *Integration) UpdateConfig(update ConfigUpdate) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if update.EnforceCompliance != nil {
		i.cfg.EnforceCompliance = *update.EnforceCompliance
	}
	if update.BlockOnViolations != nil {
		i.cfg.BlockOnViolations = *update.BlockOnViolations
	}
	if update.WarningThresholdDays != nil && *update.WarningThresholdDays > 0 {
		i.cfg.WarningThresholdDays = *update.WarningThresholdDays
	}
}

// GetConfig 返回当前配置快照
func (i *Integration) GetConfig() Config {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg
}

// IsComplianceViolation 检查错误是否为合规阻断
func IsComplianceViolation(err error) bool {
	appErr, ok := err.(*apperrors.AppError)
	return ok && appErr.Code == apperrors.CodeComplianceViolation
}
