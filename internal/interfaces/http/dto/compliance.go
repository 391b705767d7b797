package dto

import (
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/compliance"
)

// ComplianceProviderSummary 单个提供商的合规概要
type ComplianceProviderSummary struct {
	Provider        string `json:"provider"`
	Compliant       bool   `json:"compliant"`
	Score           int    `json:"score"`
	AgreementStatus string `json:"agreement_status"`
}

// ComplianceSummaryResponse 合规汇总响应
type ComplianceSummaryResponse struct {
	OverallCompliance string                      `json:"overall_compliance"`
	Providers         []ComplianceProviderSummary `json:"providers"`
	RecentViolations  int                         `json:"recent_violations"`
	PendingActions    int                         `json:"pending_actions"`
	GeneratedAt       time.Time                   `json:"generated_at"`
}

// ToComplianceSummaryResponse 转换合规汇总为 DTO
func ToComplianceSummaryResponse(s compliance.Summary) *ComplianceSummaryResponse {
	providers := make([]ComplianceProviderSummary, 0, len(s.Providers))
	for _, p := range s.Providers {
		providers = append(providers, ComplianceProviderSummary{
			Provider:        p.Provider.String(),
			Compliant:       p.Compliant,
			Score:           p.Score,
			AgreementStatus: string(p.AgreementStatus),
		})
	}
	return &ComplianceSummaryResponse{
		OverallCompliance: string(s.OverallCompliance),
		Providers:         providers,
		RecentViolations:  s.RecentViolations,
		PendingActions:    s.PendingActions,
		GeneratedAt:       s.GeneratedAt,
	}
}

// ComplianceConfigResponse 合规配置视图
type ComplianceConfigResponse struct {
	EnforceCompliance    bool `json:"enforce_compliance"`
	BlockOnViolations    bool `json:"block_on_violations"`
	WarningThresholdDays int  `json:"warning_threshold_days"`
}

// ToComplianceConfigResponse 转换合规配置为 DTO
func ToComplianceConfigResponse(cfg compliance.Config) *ComplianceConfigResponse {
	return &ComplianceConfigResponse{
		EnforceCompliance:    cfg.EnforceCompliance,
		BlockOnViolations:    cfg.BlockOnViolations,
		WarningThresholdDays: cfg.WarningThresholdDays,
	}
}

// UpdateComplianceConfigRequest 运行时合规配置调整请求
type UpdateComplianceConfigRequest struct {
	EnforceCompliance    *bool `json:"enforce_compliance,omitempty"`
	BlockOnViolations    *bool `json:"block_on_violations,omitempty"`
	WarningThresholdDays *int  `json:"warning_threshold_days,omitempty" binding:"omitempty,gt=0"`
}

// ToConfigUpdate 转换为领域配置更新
func (r *UpdateComplianceConfigRequest) ToConfigUpdate() compliance.ConfigUpdate {
	return compliance.ConfigUpdate{
		EnforceCompliance:    r.EnforceCompliance,
		BlockOnViolations:    r.BlockOnViolations,
		WarningThresholdDays: r.WarningThresholdDays,
	}
}
