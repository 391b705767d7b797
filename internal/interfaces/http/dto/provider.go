package dto

import (
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/breaker"
)

// ProviderStatus 单个提供商的运行状态
type ProviderStatus struct {
	Provider            string    `json:"provider"`
	State               string    `json:"state"`
	Available           bool      `json:"available"`
	TotalSuccesses      int64     `json:"total_successes"`
	TotalFailures       int64     `json:"total_failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Rejections          int64     `json:"rejections"`
	Uptime              float64   `json:"uptime"`
	FailureRate         float64   `json:"failure_rate"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	StateEnteredAt      time.Time `json:"state_entered_at,omitempty"`
}

// ProviderListResponse 提供商状态列表
type ProviderListResponse struct {
	Providers []ProviderStatus `json:"providers"`
}

// ToProviderStatus 转换熔断指标为 DTO
func ToProviderStatus(m breaker.Metrics, available bool) ProviderStatus {
	return ProviderStatus{
		Provider:            m.Provider.String(),
		State:               string(m.State),
		Available:           available,
		TotalSuccesses:      m.TotalSuccesses,
		TotalFailures:       m.TotalFailures,
		ConsecutiveFailures: m.ConsecutiveFailures,
		Rejections:          m.Rejections,
		Uptime:              m.Uptime,
		FailureRate:         m.FailureRate,
		LastSuccessAt:       m.LastSuccessAt,
		LastFailureAt:       m.LastFailureAt,
		StateEnteredAt:      m.StateEnteredAt,
	}
}
