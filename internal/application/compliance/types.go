// Package compliance 提供提供商使用协议的合规门控
package compliance

import (
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// Config 合规门控配置
type Config struct {
	// EnforceCompliance 违规时是否阻断请求
	EnforceCompliance bool
	// BlockOnViolations 汇总中是否将违规提供商计入待处理动作
	BlockOnViolations bool
	// WarningThresholdDays 协议到期前多少天开始降分告警
	WarningThresholdDays int
	// WarnScore / OKScore 全局分数阈值（0-1）
	WarnScore float64
	OKScore   float64
	// ProviderScores 按提供商覆盖阈值
	ProviderScores map[entity.Provider]ScoreThresholds
}

// ScoreThresholds 按提供商的分数阈值
type ScoreThresholds struct {
	WarnScore float64
	OKScore   float64
}

// 默认配置值
const (
	DefaultWarningThresholdDays = 30
	DefaultWarnScore            = 0.7
	DefaultOKScore              = 0.8
)

// withDefaults 补齐未设置的配置项
func (c Config) withDefaults() Config {
	if c.WarningThresholdDays <= 0 {
		c.WarningThresholdDays = DefaultWarningThresholdDays
	}
	if c.WarnScore <= 0 {
		c.WarnScore = DefaultWarnScore
	}
	if c.OKScore <= 0 {
		c.OKScore = DefaultOKScore
	}
	return c
}

// ConfigUpdate 运行时可调整的配置片段，nil 字段保持不变
type ConfigUpdate struct {
	EnforceCompliance    *bool `json:"enforce_compliance,omitempty"`
	BlockOnViolations    *bool `json:"block_on_violations,omitempty"`
	WarningThresholdDays *int  `json:"warning_threshold_days,omitempty"`
}

// CheckResult 单次合规检查结果，随请求生命周期存在，不持久化
type CheckResult struct {
	Allowed         bool                   `json:"allowed"`
	Provider        entity.Provider        `json:"provider"`
	ComplianceScore int                    `json:"compliance_score"`
	AgreementStatus entity.AgreementStatus `json:"agreement_status"`
	Violations      []string               `json:"violations"`
	Warnings        []string               `json:"warnings"`
}

// OverallStatus 汇总合规状态
type OverallStatus string

const (
	OverallCompliant    OverallStatus = "compliant"
	OverallWarning      OverallStatus = "warning"
	OverallNonCompliant OverallStatus = "non_compliant"
)

// ProviderSummary 单个提供商的合规概要
type ProviderSummary struct {
	Provider        entity.Provider        `json:"provider"`
	Compliant       bool                   `json:"compliant"`
	Score           int                    `json:"score"`
	AgreementStatus entity.AgreementStatus `json:"agreement_status"`
}

// Summary 全量提供商的合规汇总
type Summary struct {
	OverallCompliance OverallStatus     `json:"overall_compliance"`
	Providers         []ProviderSummary `json:"providers"`
	RecentViolations  int               `json:"recent_violations"`
	PendingActions    int               `json:"pending_actions"`
	GeneratedAt       time.Time         `json:"generated_at"`
}
