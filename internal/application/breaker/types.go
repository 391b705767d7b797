// Package breaker 提供按提供商隔离的熔断器
package breaker

import (
	"context"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// State 熔断器状态
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config 熔断器配置
type Config struct {
	// FailureThreshold 连续失败多少次后进入 open
	FailureThreshold int
	// RecoveryTimeout open 状态持续多久后允许半开探测
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls 半开状态下允许的并发探测数
	HalfOpenMaxCalls int
}

// 默认配置值
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultHalfOpenMaxCalls = 2
)

// withDefaults 补齐未设置的配置项
func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	return c
}

// Metrics 单个提供商的熔断指标快照
type Metrics struct {
	Provider            entity.Provider `json:"provider"`
	State               State           `json:"state"`
	TotalSuccesses      int64           `json:"total_successes"`
	TotalFailures       int64           `json:"total_failures"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Rejections          int64           `json:"rejections"`
	LastSuccessAt       time.Time       `json:"last_success_at"`
	LastFailureAt       time.Time       `json:"last_failure_at"`
	StateEnteredAt      time.Time       `json:"state_entered_at"`

	// 派生指标
	Uptime      float64 `json:"uptime"`
	FailureRate float64 `json:"failure_rate"`
}

// Operation 被熔断器包裹的提供商调用。
// 熔断器不关心返回值的具体形态，调用方自行断言。
type Operation func(ctx context.Context) (any, error)
